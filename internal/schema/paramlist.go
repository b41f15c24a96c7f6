package schema

// inlineCap is the small-buffer-optimization threshold for a Tool's
// parameter list: typical tool arity is at most four, so the common case
// fits in an inline array and avoids a heap allocation; larger parameter
// lists fall back to an overflow slice transparently.
const inlineCap = 4

// ParamList is a small-buffer-optimized, append-only list of ToolParameter.
// The zero value is an empty list ready to use.
type ParamList struct {
	inline [inlineCap]ToolParameter
	n      int
	spill  []ToolParameter
}

// Append adds p to the end of the list.
func (l *ParamList) Append(p ToolParameter) {
	if l.n < inlineCap {
		l.inline[l.n] = p
		l.n++
		return
	}
	l.spill = append(l.spill, p)
	l.n++
}

// Len returns the number of parameters in the list.
func (l *ParamList) Len() int { return l.n }

// Get returns the i-th parameter. It panics if i is out of range, matching
// slice indexing semantics.
func (l *ParamList) Get(i int) ToolParameter {
	if i < inlineCap {
		return l.inline[i]
	}
	return l.spill[i-inlineCap]
}

// Slice materializes the list as a plain slice in insertion order.
func (l *ParamList) Slice() []ToolParameter {
	out := make([]ToolParameter, 0, l.n)
	for i := 0; i < l.n; i++ {
		out = append(out, l.Get(i))
	}
	return out
}

// ByName returns the parameter named name, if present.
func (l *ParamList) ByName(name string) (ToolParameter, bool) {
	for i := 0; i < l.n; i++ {
		p := l.Get(i)
		if p.Name == name {
			return p, true
		}
	}
	return ToolParameter{}, false
}
