package template

import (
	"errors"
	"strconv"
)

// VisitFunc is called for every leaf in document order. Returning SkipRest stops
// the walk without an error.
type VisitFunc func(path Path, leaf *Leaf) error

// SkipRest stops a walk early.
var SkipRest = errors.New("skip remaining leaves")

// Walk visits every leaf of n depth-first, including leaves inside sequences.
func Walk(n Node, fn VisitFunc) error {
	err := walk(n, nil, fn)
	if errors.Is(err, SkipRest) {
		return nil
	}
	return err
}

func walk(n Node, at Path, fn VisitFunc) error {
	switch v := n.(type) {
	case *Leaf:
		return fn(at, v)
	case *Object:
		for _, f := range v.Fields {
			if err := walk(f.Value, at.Child(f.Name), fn); err != nil {
				return err
			}
		}
	case *Sequence:
		for i, item := range v.Items {
			if err := walk(item, at.Child(strconv.Itoa(i)), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// LeafRef is a leaf together with its location.
type LeafRef struct {
	Path Path
	Leaf *Leaf
}

// Leaves lists every leaf of n in document order.
func Leaves(n Node) []LeafRef {
	var out []LeafRef
	_ = Walk(n, func(p Path, l *Leaf) error {
		out = append(out, LeafRef{Path: p, Leaf: l})
		return nil
	})
	return out
}

// Unresolved lists the leaves whose answer equals sentinel (TBD or CONFLICT).
func Unresolved(n Node, sentinel string) []LeafRef {
	match := IsTBD
	if sentinel == Conflict {
		match = IsConflict
	}

	var out []LeafRef
	_ = Walk(n, func(p Path, l *Leaf) error {
		if match(l.Answer) {
			out = append(out, LeafRef{Path: p, Leaf: l})
		}
		return nil
	})
	return out
}
