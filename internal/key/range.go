package key

import (
	"fmt"
	"strings"
)

// Range is a half-open or closed interval over keys. A nil bound is
// unbounded on that side.
type Range struct {
	Lower     *Key
	Upper     *Key
	LowerOpen bool
	UpperOpen bool
}

// Bound builds a range with both bounds set.
func Bound(lower, upper Key, lowerOpen, upperOpen bool) Range {
	return Range{Lower: &lower, Upper: &upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
}

// LowerBound builds a range bounded from below only.
func LowerBound(lower Key, open bool) Range {
	return Range{Lower: &lower, LowerOpen: open}
}

// UpperBound builds a range bounded from above only.
func UpperBound(upper Key, open bool) Range {
	return Range{Upper: &upper, UpperOpen: open}
}

// Only builds the degenerate range containing exactly v.
func Only(v Key) Range {
	return Bound(v, v, false, false)
}

// Unbounded reports whether the range covers all keys.
func (r Range) Unbounded() bool {
	return r.Lower == nil && r.Upper == nil
}

// Contains reports whether k lies inside the range.
func (r Range) Contains(k Key) bool {
	if r.Lower != nil {
		c := Cmp(k, *r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c := Cmp(k, *r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// TightenLower returns a copy of r whose lower bound is raised to k. Used by
// cursor restart: the new bound is closed unless open is set.
func (r Range) TightenLower(k Key, open bool) Range {
	out := r
	out.Lower = &k
	out.LowerOpen = open
	return out
}

// TightenUpper returns a copy of r whose upper bound is lowered to k.
func (r Range) TightenUpper(k Key, open bool) Range {
	out := r
	out.Upper = &k
	out.UpperOpen = open
	return out
}

// Where is one conjunct range predicate on a named record field, as carried
// in the query IR. A query holds at most one Where per field.
type Where struct {
	Field string
	Range Range
}

// WhereBound builds a Where covering lower..upper on field.
func WhereBound(field string, lower, upper Key, lowerOpen, upperOpen bool) Where {
	return Where{Field: field, Range: Bound(lower, upper, lowerOpen, upperOpen)}
}

// WhereOnly builds an equality Where.
func WhereOnly(field string, v Key) Where {
	return Where{Field: field, Range: Only(v)}
}

// String renders the range for diagnostics.
func (r Range) String() string {
	var b strings.Builder
	if r.Lower != nil {
		if r.LowerOpen {
			b.WriteString("(")
		} else {
			b.WriteString("[")
		}
		b.WriteString(r.Lower.String())
	} else {
		b.WriteString("(-inf")
	}
	b.WriteString(", ")
	if r.Upper != nil {
		b.WriteString(r.Upper.String())
		if r.UpperOpen {
			b.WriteString(")")
		} else {
			b.WriteString("]")
		}
	} else {
		b.WriteString("+inf)")
	}
	return b.String()
}

// Merge combines two ranges on the same field into their intersection.
// Returns an error when both carry the same kind of bound, which is how a
// duplicate where-clause on one field surfaces.
func Merge(a, b Range) (Range, error) {
	out := a
	if b.Lower != nil {
		if out.Lower != nil {
			return Range{}, fmt.Errorf("duplicate lower bound")
		}
		out.Lower = b.Lower
		out.LowerOpen = b.LowerOpen
	}
	if b.Upper != nil {
		if out.Upper != nil {
			return Range{}, fmt.Errorf("duplicate upper bound")
		}
		out.Upper = b.Upper
		out.UpperOpen = b.UpperOpen
	}
	return out, nil
}
