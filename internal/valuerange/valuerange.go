// Package valuerange tests 32-bit values against sets of inclusive ranges.
package valuerange

// Range is an inclusive [Min, Max] interval. A range with Min > Max
// contains nothing.
type Range struct {
	Min uint32
	Max uint32
}

// Exact returns the range holding only v.
func Exact(v uint32) Range {
	return Range{Min: v, Max: v}
}

func (r Range) Contains(v uint32) bool {
	return r.Min <= v && v <= r.Max
}

// Match reports whether v falls in at least one of ranges. An empty set
// matches nothing.
func Match(v uint32, ranges []Range) bool {
	for i := range ranges {
		if ranges[i].Contains(v) {
			return true
		}
	}
	return false
}
