package query

import (
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Filter is a post-range predicate evaluated per row against a record
// field. Wheres that could not be served by the scanned index become
// filters.
type Filter struct {
	Field string
	Range key.Range
}

// Match evaluates the filter against a record.
func (f Filter) Match(rec core.Record) bool {
	v, ok := rec[f.Field]
	if !ok {
		return false
	}
	k, err := key.FromValue(v)
	if err != nil {
		return false
	}
	return f.Range.Contains(k)
}

// Descriptor is a compiled native-cursor plan: which index to scan over
// which range and direction, which predicates to apply per row, and the
// projection and accumulation to run over the stream.
type Descriptor struct {
	Store     string
	Index     string // "" scans the primary key
	Range     key.Range
	Direction core.Direction
	Filters   []Filter
	Map       *MapSpec
	Reduce    *ReduceSpec
	Limit     int
	Offset    int
}

// CompileNative lowers an IR to a native cursor descriptor. Index selection:
// a named index wins; otherwise the first where whose field is an index of
// the store supplies the scan range, and every remaining where becomes a
// per-row filter.
func CompileNative(q *IR, db *schema.Database) (*Descriptor, error) {
	st, err := q.Validate(db)
	if err != nil {
		return nil, err
	}
	d := &Descriptor{
		Store:     q.Store,
		Index:     q.Index,
		Direction: q.Direction,
		Map:       q.Map,
		Reduce:    q.Reduce,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	rangeTaken := false
	for _, w := range q.Wheres {
		if !rangeTaken && d.Index == "" && st.HasIndex(w.Field) {
			d.Index = w.Field
			d.Range = w.Range
			rangeTaken = true
			continue
		}
		if !rangeTaken && d.Index != "" && w.Field == d.Index {
			d.Range = w.Range
			rangeTaken = true
			continue
		}
		d.Filters = append(d.Filters, Filter{Field: w.Field, Range: w.Range})
	}
	return d, nil
}

// ProjectRow applies the map spec to a decoded row. With one field the
// result is that field's value; with several it is a trimmed record.
func (m *MapSpec) ProjectRow(rec core.Record) interface{} {
	if m == nil {
		return rec
	}
	if len(m.Fields) == 1 {
		return rec[m.Fields[0]]
	}
	out := make(core.Record, len(m.Fields))
	for _, f := range m.Fields {
		out[f] = rec[f]
	}
	return out
}

// FoldValue returns the value the reduce op consumes for one record.
func (r *ReduceSpec) FoldValue(rec core.Record) interface{} {
	if r == nil {
		return nil
	}
	if r.Op == ReduceCount {
		return nil
	}
	return reduceFieldValue(rec, r.Field)
}
