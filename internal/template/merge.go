package template

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrStructuralConflict is matched by every *StructuralConflictError.
var ErrStructuralConflict = errors.New("structural merge conflict")

// StructuralConflictError reports two templates that define the same path with an
// incompatible shape or description. It points at a schema bug, not at user data.
type StructuralConflictError struct {
	Path   Path
	Reason string
}

func (e *StructuralConflictError) Error() string {
	return fmt.Sprintf("structural merge conflict at %q: %s", e.Path.String(), e.Reason)
}

func (e *StructuralConflictError) Is(target error) bool {
	return target == ErrStructuralConflict
}

// Merge combines templates by key union without losing any leaf. Shared paths must
// agree on shape and description; their answers are combined with CombineAnswers.
// Inputs are not modified.
func Merge(nodes ...Node) (Node, error) {
	var out Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if out == nil {
			out = Clone(n)
			continue
		}
		merged, err := mergeAt(out, n, nil)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	if out == nil {
		return &Object{}, nil
	}
	return out, nil
}

// MergeNamed merges the roots of named templates in order.
func MergeNamed(named ...Named) (Node, error) {
	nodes := make([]Node, 0, len(named))
	for _, n := range named {
		nodes = append(nodes, n.Root)
	}
	return Merge(nodes...)
}

// mergeAt folds b into a. a is owned by the caller and may be modified.
func mergeAt(a, b Node, at Path) (Node, error) {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		if !ok {
			return nil, shapeConflict(at, a, b)
		}
		for _, f := range bv.Fields {
			existing, ok := av.Get(f.Name)
			if !ok {
				av.Fields = append(av.Fields, Field{Name: f.Name, Value: Clone(f.Value)})
				continue
			}
			merged, err := mergeAt(existing, f.Value, at.Child(f.Name))
			if err != nil {
				return nil, err
			}
			av.Set(f.Name, merged)
		}
		return av, nil

	case *Sequence:
		bv, ok := b.(*Sequence)
		if !ok {
			return nil, shapeConflict(at, a, b)
		}
		for i, item := range bv.Items {
			if i >= len(av.Items) {
				av.Items = append(av.Items, Clone(item))
				continue
			}
			merged, err := mergeAt(av.Items[i], item, at.Child(strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			av.Items[i] = merged
		}
		return av, nil

	case *Leaf:
		bv, ok := b.(*Leaf)
		if !ok {
			return nil, shapeConflict(at, a, b)
		}
		if strings.TrimSpace(av.Description) != strings.TrimSpace(bv.Description) {
			return nil, &StructuralConflictError{
				Path:   at,
				Reason: fmt.Sprintf("descriptions differ: %q vs %q", av.Description, bv.Description),
			}
		}
		av.Answer = CombineAnswers(av.Answer, bv.Answer)
		return av, nil

	case Text:
		bv, ok := b.(Text)
		if !ok {
			return nil, shapeConflict(at, a, b)
		}
		if av != bv {
			return nil, &StructuralConflictError{Path: at, Reason: fmt.Sprintf("labels differ: %q vs %q", av, bv)}
		}
		return av, nil
	}
	return nil, shapeConflict(at, a, b)
}

func shapeConflict(at Path, a, b Node) error {
	return &StructuralConflictError{Path: at, Reason: fmt.Sprintf("%s vs %s", kind(a), kind(b))}
}

func kind(n Node) string {
	switch n.(type) {
	case *Leaf:
		return "leaf"
	case *Object:
		return "object"
	case *Sequence:
		return "sequence"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("%T", n)
	}
}

// CombineAnswers merges two answers for the same leaf. TBD yields to anything,
// equal values collapse, and two different concrete values become CONFLICT.
func CombineAnswers(a, b string) string {
	switch {
	case IsTBD(b) || strings.TrimSpace(b) == "":
		return a
	case IsTBD(a) || strings.TrimSpace(a) == "":
		return b
	case IsConflict(a) || IsConflict(b):
		return Conflict
	case SameValue(a, b):
		return a
	default:
		return Conflict
	}
}

// SameValue compares answers ignoring case and runs of whitespace.
func SameValue(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Distinct returns values in order of first appearance without duplicates, blanks
// or TBD. CONFLICT entries are kept once.
func Distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || IsTBD(v) {
			continue
		}
		if IsConflict(v) {
			v = Conflict
		}
		key := normalize(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// ResolveCandidates turns every value found for one field into its answer:
// nothing found is TBD, one distinct value is that value, more is CONFLICT.
func ResolveCandidates(values []string) string {
	d := Distinct(values)
	switch {
	case len(d) == 0:
		return TBD
	case len(d) == 1:
		return d[0]
	default:
		return Conflict
	}
}
