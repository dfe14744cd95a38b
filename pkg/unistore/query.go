package unistore

import (
	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Iter declares an iteration: a store, an optional index, a direction and
// conjunct range predicates. Build one with NewIter and the chainable
// refinements, then hand it to Open, Map, Reduce or Execute.
type Iter struct {
	ir query.IR
}

// NewIter starts an ascending iteration over a store's primary key.
func NewIter(store string) *Iter {
	return &Iter{ir: query.IR{Store: store, Direction: core.DirNext}}
}

// Index orders the iteration by a declared index.
func (it *Iter) Index(name string) *Iter {
	it.ir.Index = name
	return it
}

// Direction sets one of the four direction identifiers.
func (it *Iter) Direction(d Direction) *Iter {
	it.ir.Direction = d
	return it
}

// Where adds a conjunct range predicate on a field. A field may carry at
// most one where.
func (it *Iter) Where(field string, rng KeyRange) *Iter {
	internal, err := rng.internal()
	if err != nil {
		it.ir.Wheres = append(it.ir.Wheres, key.Where{Field: field})
		return it
	}
	it.ir.Wheres = append(it.ir.Wheres, key.Where{Field: field, Range: internal})
	return it
}

// Limit caps the number of rows.
func (it *Iter) Limit(n int) *Iter {
	it.ir.Limit = n
	return it
}

// Offset skips the first n rows.
func (it *Iter) Offset(n int) *Iter {
	it.ir.Offset = n
	return it
}

// Select projects the given fields per row: one field yields scalars,
// several a trimmed record.
func (it *Iter) Select(fields ...string) *Iter {
	it.ir.Map = &query.MapSpec{Fields: fields}
	return it
}

// Query parses the restricted SQL dialect and resolves with its result:
// a record slice for SELECT, a scalar for aggregates.
func (s *Storage) Query(sql string, params ...interface{}) *Request {
	ir, err := query.Parse(sql, params...)
	if err != nil {
		return core.Rejected(err)
	}
	return s.executeIR(ir)
}

// Execute runs a built iteration and resolves with the projected rows.
func (s *Storage) Execute(it *Iter) *Request {
	ir := it.ir
	return s.executeIR(&ir)
}

// executeIR compiles the IR for the active backend and runs it: relational
// transactions take the generated-SQL path, everything else scans a native
// cursor. Both paths share the post-processing pipeline so results agree.
func (s *Storage) executeIR(ir *query.IR) *core.Request {
	db := s.schemaDB()
	return s.withTx([]string{ir.Store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		if sqltx, ok := tx.(backend.SQLTx); ok {
			if quoter, ok := s.driver.(interface{ Quote(string) string }); ok {
				return s.executeSQL(sqltx, ir, db, quoter.Quote)
			}
		}
		return s.executeNative(tx, ir, db)
	}, nil)
}

// executeSQL runs the generated-SQL path: compile, execute, then finish in
// the pipeline. Wheres on non-indexed fields arrive as runtime filters.
func (s *Storage) executeSQL(tx backend.SQLTx, ir *query.IR, db *schema.Database, quote key.QuoteFunc) (interface{}, error) {
	plan, err := query.CompileSQL(ir, db, quote)
	if err != nil {
		return nil, err
	}
	res, err := tx.QueryPlan(plan)
	if err != nil {
		return nil, err
	}
	if plan.Finalize == query.FinalizeTakeFirst {
		return finishAggregate(plan.Aggregated, res.First), nil
	}
	if plan.KeyProjection {
		keys := res.Keys
		if !plan.LimitInSQL {
			keys = sliceKeys(keys, plan.Offset, plan.Limit)
		}
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = k.Value()
		}
		return out, nil
	}
	// Unique index scans that carried runtime filters come back as
	// records ordered by the index; recover the distinct keys here.
	if ir.Direction.Unique() && ir.Index != "" && plan.Reduce == nil && plan.Map == nil && len(plan.Filters) > 0 {
		st := db.Store(ir.Store)
		ix := st.Index(ir.Index)
		var keys []interface{}
		var last key.Key
		hasLast := false
		seen := 0
		for _, rec := range res.Records {
			if !matchFilters(rec, plan.Filters) {
				continue
			}
			ik, err := st.ExtractIndexKey(ix, rec)
			if err != nil || !ik.Defined() {
				continue
			}
			if hasLast && key.Equal(last, ik) {
				continue
			}
			last = ik
			hasLast = true
			seen++
			if seen <= plan.Offset {
				continue
			}
			keys = append(keys, ik.Value())
			if plan.Limit > 0 && len(keys) >= plan.Limit {
				break
			}
		}
		return keys, nil
	}
	return runPipeline(res.Records, plan.Filters, plan.Map, plan.Reduce, pipelineBounds(plan)), nil
}

// finishAggregate coerces a SQL aggregate scalar to the pipeline's result
// conventions.
func finishAggregate(op query.ReduceOp, first interface{}) interface{} {
	if op == query.ReduceCount {
		switch n := first.(type) {
		case float64:
			return int(n)
		case int64:
			return int(n)
		case nil:
			return 0
		}
	}
	return first
}

func sliceKeys(keys []key.Key, offset, limit int) []key.Key {
	if offset > 0 {
		if offset >= len(keys) {
			return nil
		}
		keys = keys[offset:]
	}
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}
	return keys
}

type bounds struct {
	offset int
	limit  int
}

func pipelineBounds(plan *query.SQLPlan) bounds {
	if plan.LimitInSQL {
		return bounds{}
	}
	return bounds{offset: plan.Offset, limit: plan.Limit}
}

// runPipeline applies filters, offset/limit, projection and accumulation
// to a decoded row stream. Shared by both execution paths.
func runPipeline(recs []Record, filters []query.Filter, mapSpec *query.MapSpec, reduce *query.ReduceSpec, b bounds) interface{} {
	var acc *query.Accumulator
	if reduce != nil {
		acc = query.NewAccumulator(reduce.Op)
	}
	var rows []interface{}
	seen := 0
	for _, rec := range recs {
		if !matchFilters(rec, filters) {
			continue
		}
		seen++
		if seen <= b.offset {
			continue
		}
		if acc != nil {
			if reduce.Op == query.ReduceCount {
				acc.Add(nil)
			} else {
				acc.Add(reduce.FoldValue(rec))
			}
		} else {
			rows = append(rows, mapSpec.ProjectRow(rec))
		}
		if b.limit > 0 && seen-b.offset >= b.limit {
			break
		}
	}
	if acc != nil {
		return acc.Result()
	}
	return rows
}

func matchFilters(rec Record, filters []query.Filter) bool {
	for _, f := range filters {
		if !f.Match(rec) {
			return false
		}
	}
	return true
}

// executeNative runs the native-cursor path: compile a descriptor, scan the
// cursor, and feed the pipeline.
func (s *Storage) executeNative(tx backend.Tx, ir *query.IR, db *schema.Database) (interface{}, error) {
	desc, err := query.CompileNative(ir, db)
	if err != nil {
		return nil, err
	}
	// Unique index scans yield the distinct effective keys, matching the
	// relational path's DISTINCT key projection. When runtime filters are
	// present the class collapse must happen after filtering — a class
	// whose first row fails the filter can still be represented by a
	// later row — so the scan runs without duplicate suppression and the
	// distinct keys are recovered here, exactly as executeSQL does.
	if desc.Direction.Unique() && desc.Index != "" && desc.Map == nil && desc.Reduce == nil {
		scan := *desc
		if len(desc.Filters) > 0 {
			scan.Direction = desc.Direction.Base()
		}
		cur, err := tx.OpenCursor(&scan)
		if err != nil {
			return nil, err
		}
		defer cur.Close()

		var keys []interface{}
		var last key.Key
		hasLast := false
		seen := 0
		for cur.HasCursor() {
			if len(desc.Filters) > 0 {
				rec, err := cur.Value()
				if err != nil {
					return nil, err
				}
				if !matchFilters(rec, desc.Filters) {
					if err := cur.Advance(1); err != nil {
						return nil, err
					}
					continue
				}
			}
			ik := cur.EffectiveKey()
			if hasLast && key.Equal(last, ik) {
				if err := cur.Advance(1); err != nil {
					return nil, err
				}
				continue
			}
			last = ik
			hasLast = true
			seen++
			if seen > desc.Offset {
				keys = append(keys, ik.Value())
			}
			if desc.Limit > 0 && len(keys) >= desc.Limit {
				break
			}
			if err := cur.Advance(1); err != nil {
				return nil, err
			}
		}
		return keys, nil
	}

	cur, err := tx.OpenCursor(desc)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var recs []Record
	for cur.HasCursor() {
		rec, err := cur.Value()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
		if err := cur.Advance(1); err != nil {
			return nil, err
		}
	}
	return runPipeline(recs, desc.Filters, desc.Map, desc.Reduce, bounds{offset: desc.Offset, limit: desc.Limit}), nil
}
