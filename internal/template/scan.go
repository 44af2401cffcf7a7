package template

// HasConflict reports whether any leaf of n, at any depth, is CONFLICT.
func HasConflict(n Node) bool {
	found := false
	_ = Walk(n, func(_ Path, l *Leaf) error {
		if IsConflict(l.Answer) {
			found = true
			return SkipRest
		}
		return nil
	})
	return found
}

// ScanText parses a serialized template and reports whether it holds a conflict.
// A document that does not parse is an error, never a clean result.
func ScanText(s string) (bool, error) {
	n, err := ParseString(s)
	if err != nil {
		return false, err
	}
	return HasConflict(n), nil
}
