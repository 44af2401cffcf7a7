package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrParse marks a document that is not a valid template.
var ErrParse = errors.New("invalid template document")

// Parse decodes a JSON template, preserving field order. An object is a leaf when
// it carries a "User Answer" key.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeNode(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after template", ErrParse)
	}
	return n, nil
}

// ParseString is Parse for text payloads.
func ParseString(s string) (Node, error) {
	return Parse([]byte(s))
}

func decodeNode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			seq := &Sequence{}
			for dec.More() {
				item, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				seq.Items = append(seq.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return seq, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return Text(scalarString(t)), nil
	}
}

func decodeObject(dec *json.Decoder) (Node, error) {
	obj := &Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", tok)
		}
		value, err := decodeNode(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		obj.Fields = append(obj.Fields, Field{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	answer, ok := obj.Get(answerKey)
	if !ok {
		return obj, nil
	}

	leaf := &Leaf{Answer: flattenAnswer(answer)}
	if desc, ok := obj.Get(descriptionKey); ok {
		leaf.Description = flattenAnswer(desc)
	}
	return leaf, nil
}

// flattenAnswer turns whatever sits in an answer slot into a string. Lists of
// values are joined; a null slot has no information and reads as TBD.
func flattenAnswer(n Node) string {
	switch v := n.(type) {
	case Text:
		if v == Text(nullText) {
			return TBD
		}
		return string(v)
	case *Sequence:
		parts := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			parts = append(parts, flattenAnswer(item))
		}
		return strings.Join(parts, ", ")
	case *Leaf:
		return v.Answer
	default:
		b, _ := Encode(n)
		return string(b)
	}
}

const nullText = "\x00null"

func scalarString(tok json.Token) string {
	switch v := tok.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return nullText
	default:
		return fmt.Sprint(v)
	}
}

// Encode renders n as indented JSON in field order.
func Encode(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeNode(&buf, n); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// String renders n for prompts and logs. Encoding errors yield an empty string.
func String(n Node) string {
	b, err := Encode(n)
	if err != nil {
		return ""
	}
	return string(b)
}

func encodeNode(buf *bytes.Buffer, n Node) error {
	switch v := n.(type) {
	case *Leaf:
		buf.WriteByte('{')
		writeString(buf, descriptionKey)
		buf.WriteByte(':')
		writeString(buf, v.Description)
		buf.WriteByte(',')
		writeString(buf, answerKey)
		buf.WriteByte(':')
		writeString(buf, v.Answer)
		buf.WriteByte('}')
	case *Object:
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, f.Name)
			buf.WriteByte(':')
			if err := encodeNode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case *Sequence:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Text:
		if v == Text(nullText) {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, string(v))
	default:
		return fmt.Errorf("cannot encode node of type %T", n)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
