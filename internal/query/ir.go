// Package query holds the declarative query IR, the restricted SQL parser
// that produces it, and the two compilers: one targeting native index
// cursors, one generating SQL plus a post-processing pipeline. Both paths
// must return the same results for any IR they both accept.
package query

import (
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// MapSpec is the per-row projection of a query. One field projects to a
// scalar stream; several fields project to a trimmed record per row.
type MapSpec struct {
	Fields []string
}

// ReduceOp names an accumulation lowered from an aggregate verb.
type ReduceOp string

const (
	ReduceCount  ReduceOp = "count"
	ReduceSum    ReduceOp = "sum"
	ReduceAvg    ReduceOp = "avg"
	ReduceMin    ReduceOp = "min"
	ReduceMax    ReduceOp = "max"
	ReduceConcat ReduceOp = "concat"
)

// ReduceSpec is the accumulation of a query. Field is empty only for count.
type ReduceSpec struct {
	Op    ReduceOp
	Field string
}

// IR is one declarative query against a single store: an optional index, a
// direction, conjunct range predicates, and at most one map and one reduce.
type IR struct {
	Store     string
	Index     string
	Direction core.Direction
	Wheres    []key.Where
	Map       *MapSpec
	Reduce    *ReduceSpec
	Limit     int
	Offset    int
}

// Validate checks the IR against the schema: the store must exist, a named
// index must be declared, the direction must be one of the four
// identifiers, and no field may carry two wheres.
func (q *IR) Validate(db *schema.Database) (*schema.Store, error) {
	st := db.Store(q.Store)
	if st == nil {
		return nil, core.NewError(core.KindConstraint, "store %q is not in the schema", q.Store)
	}
	if q.Index != "" && st.Index(q.Index) == nil {
		return nil, core.NewError(core.KindConstraint, "store %q has no index %q", q.Store, q.Index)
	}
	if q.Direction == "" {
		q.Direction = core.DirNext
	}
	if !q.Direction.Valid() {
		return nil, core.NewError(core.KindArgument, "invalid direction %q", q.Direction)
	}
	seen := make(map[string]bool, len(q.Wheres))
	for _, w := range q.Wheres {
		if seen[w.Field] {
			return nil, core.NewError(core.KindSqlParse, "duplicate where clause on field %q", w.Field)
		}
		seen[w.Field] = true
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, core.NewError(core.KindArgument, "limit and offset must be non-negative")
	}
	if q.Reduce != nil && q.Reduce.Op != ReduceCount && q.Reduce.Field == "" {
		return nil, core.NewError(core.KindArgument, "%s requires a field", q.Reduce.Op)
	}
	return st, nil
}

// AddWhere appends a range predicate, merging it with an existing where on
// the same field. Conflicting bounds on one field are a compile error.
func (q *IR) AddWhere(w key.Where) error {
	for i, existing := range q.Wheres {
		if existing.Field != w.Field {
			continue
		}
		merged, err := key.Merge(existing.Range, w.Range)
		if err != nil {
			return core.NewError(core.KindSqlParse, "duplicate where clause on field %q", w.Field)
		}
		q.Wheres[i].Range = merged
		return nil
	}
	q.Wheres = append(q.Wheres, w)
	return nil
}
