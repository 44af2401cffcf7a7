// Package template models the intake schemas: nested objects whose leaves carry a
// human-readable description and a mutable "User Answer" slot.
package template

import (
	"strconv"
	"strings"
)

// Sentinel answers. A leaf holding one of these is not resolved yet.
const (
	TBD      = "TBD"
	Conflict = "CONFLICT"
)

const (
	descriptionKey = "Description"
	answerKey      = "User Answer"
)

// Node is one of *Leaf, *Object, *Sequence or Text.
type Node interface {
	node()
}

// Leaf is a fillable slot.
type Leaf struct {
	Description string
	Answer      string
}

// Field is a named member of an Object.
type Field struct {
	Name  string
	Value Node
}

// Object keeps its fields in document order.
type Object struct {
	Fields []Field
}

// Sequence is a repeatable group.
type Sequence struct {
	Items []Node
}

// Text is a static scalar such as a "Category" label. It is not a slot.
type Text string

func (*Leaf) node()     {}
func (*Object) node()   {}
func (*Sequence) node() {}
func (Text) node()      {}

// NewLeaf returns an unresolved leaf.
func NewLeaf(description string) *Leaf {
	return &Leaf{Description: description, Answer: TBD}
}

// IsTBD reports whether s is the TBD sentinel, ignoring case and surrounding space.
func IsTBD(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), TBD)
}

// IsConflict reports whether s is the CONFLICT sentinel.
func IsConflict(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), Conflict)
}

// IsSentinel reports whether s is either sentinel.
func IsSentinel(s string) bool {
	return IsTBD(s) || IsConflict(s)
}

// Resolved reports whether the leaf holds a concrete value.
func (l *Leaf) Resolved() bool {
	return !IsSentinel(l.Answer) && strings.TrimSpace(l.Answer) != ""
}

// Get returns the value of the named field.
func (o *Object) Get(name string) (Node, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the named field or appends it.
func (o *Object) Set(name string, value Node) {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = value
			return
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: value})
}

// Path addresses a node from the root. Sequence items use their decimal index.
type Path []string

func (p Path) String() string {
	return strings.Join(p, " / ")
}

// Key is a collision-free map key for p.
func (p Path) Key() string {
	return strings.Join(p, "\x1f")
}

// Child returns a copy of p extended with name.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Named pairs a template with the schema it was loaded from.
type Named struct {
	Name string
	Root Node
}

// Schema names used by the store and the driver.
const (
	BusinessObjective = "business_objective"
	Observation       = "observation"
)

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *Leaf:
		c := *v
		return &c
	case *Object:
		out := &Object{Fields: make([]Field, len(v.Fields))}
		for i, f := range v.Fields {
			out.Fields[i] = Field{Name: f.Name, Value: Clone(f.Value)}
		}
		return out
	case *Sequence:
		out := &Sequence{Items: make([]Node, len(v.Items))}
		for i, item := range v.Items {
			out.Items[i] = Clone(item)
		}
		return out
	case Text:
		return v
	default:
		return nil
	}
}

// Lookup returns the node at path.
func Lookup(n Node, path Path) (Node, bool) {
	cur := n
	for _, seg := range path {
		switch v := cur.(type) {
		case *Object:
			next, ok := v.Get(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case *Sequence:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v.Items) {
				return nil, false
			}
			cur = v.Items[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// LeafAt returns the leaf at path, if the path ends on one.
func LeafAt(n Node, path Path) (*Leaf, bool) {
	node, ok := Lookup(n, path)
	if !ok {
		return nil, false
	}
	leaf, ok := node.(*Leaf)
	return leaf, ok
}

// Select keeps only the subtrees addressed by paths. A path naming an object keeps
// the whole object; a path naming a leaf keeps that leaf and its ancestors.
// Unknown paths are ignored. Field order follows n.
func Select(n Node, paths []Path) Node {
	if len(paths) == 0 {
		return nil
	}
	return selectAt(n, nil, paths)
}

func selectAt(n Node, at Path, paths []Path) Node {
	for _, p := range paths {
		if at.HasPrefix(p) {
			return Clone(n)
		}
	}

	switch v := n.(type) {
	case *Object:
		out := &Object{}
		selected := 0
		for _, f := range v.Fields {
			// static labels ride along so flattening can still find the category
			if t, ok := f.Value.(Text); ok {
				out.Fields = append(out.Fields, Field{Name: f.Name, Value: t})
				continue
			}
			child := at.Child(f.Name)
			if !wanted(child, paths) {
				continue
			}
			if kept := selectAt(f.Value, child, paths); kept != nil {
				out.Fields = append(out.Fields, Field{Name: f.Name, Value: kept})
				selected++
			}
		}
		if selected == 0 {
			return nil
		}
		return out
	case *Sequence:
		out := &Sequence{}
		for i, item := range v.Items {
			child := at.Child(strconv.Itoa(i))
			if !wanted(child, paths) {
				continue
			}
			if kept := selectAt(item, child, paths); kept != nil {
				out.Items = append(out.Items, kept)
			}
		}
		if len(out.Items) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// wanted reports whether some path runs through at.
func wanted(at Path, paths []Path) bool {
	for _, p := range paths {
		if p.HasPrefix(at) || at.HasPrefix(p) {
			return true
		}
	}
	return false
}
