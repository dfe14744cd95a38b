package key

import (
	"strings"
)

// QuoteFunc applies a backend's identifier quoting rules to a column name.
type QuoteFunc func(string) string

// SQLValue converts the key into a value suitable for a parameterized SQL
// statement. Tuples are not representable as one parameter; callers project
// them per component column.
func (k Key) SQLValue() interface{} {
	switch k.k {
	case kindNumber:
		return k.num
	case kindDate:
		return k.date
	case kindString:
		return k.str
	}
	return nil
}

// ToSQL projects the range onto a single column, producing a WHERE fragment
// and its bound parameters. An unbounded range yields an empty fragment.
func (r Range) ToSQL(column string, quote QuoteFunc) (string, []interface{}) {
	col := quote(column)
	var conds []string
	var params []interface{}

	// An equality range collapses to one comparison.
	if r.Lower != nil && r.Upper != nil && !r.LowerOpen && !r.UpperOpen && Equal(*r.Lower, *r.Upper) {
		return col + " = ?", []interface{}{r.Lower.SQLValue()}
	}
	if r.Lower != nil {
		op := ">="
		if r.LowerOpen {
			op = ">"
		}
		conds = append(conds, col+" "+op+" ?")
		params = append(params, r.Lower.SQLValue())
	}
	if r.Upper != nil {
		op := "<="
		if r.UpperOpen {
			op = "<"
		}
		conds = append(conds, col+" "+op+" ?")
		params = append(params, r.Upper.SQLValue())
	}
	return strings.Join(conds, " AND "), params
}

// ToSQLTuple projects a range over a tuple key onto its component columns as
// a conjunction, one comparison per bound per column. Bounds that are not
// tuples, and columns beyond the bound's arity, are skipped.
func (r Range) ToSQLTuple(columns []string, quote QuoteFunc) (string, []interface{}) {
	var conds []string
	var params []interface{}

	appendBound := func(bound *Key, open bool, lower bool) {
		if bound == nil || !bound.IsTuple() {
			return
		}
		op := map[bool]string{true: ">=", false: "<="}[lower]
		if open {
			op = map[bool]string{true: ">", false: "<"}[lower]
		}
		for i, part := range bound.Components() {
			if i >= len(columns) {
				break
			}
			conds = append(conds, quote(columns[i])+" "+op+" ?")
			params = append(params, part.SQLValue())
		}
	}
	appendBound(r.Lower, r.LowerOpen, true)
	appendBound(r.Upper, r.UpperOpen, false)
	return strings.Join(conds, " AND "), params
}
