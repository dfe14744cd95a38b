package query

import (
	"strconv"
	"strings"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Finalize names the post-processing applied to a SQL result set.
type Finalize string

const (
	// FinalizeRows streams decoded rows through the pipeline.
	FinalizeRows Finalize = "rows"

	// FinalizeTakeFirst extracts the first column of the first row; used
	// for SQL-level aggregates, which produce a one-row result set.
	FinalizeTakeFirst Finalize = "takeFirst"
)

// SQLPlan is a compiled relational execution: a parameterized statement plus
// the pipeline the executor runs over the result set. Wheres on non-indexed
// fields cannot be pushed into SQL (those fields live inside the serialized
// record) and stay here as runtime filters.
type SQLPlan struct {
	SQL      string
	Params   []interface{}
	Finalize Finalize

	Filters []Filter
	Map     *MapSpec
	Reduce  *ReduceSpec
	Limit   int
	Offset  int

	// KeyProjection reports that the statement selects effective-key
	// columns instead of the record column (unique scans).
	KeyProjection bool

	// Aggregated names the reduce op folded inside SQL, for result
	// coercion by the executor. Empty when the pipeline folds instead.
	Aggregated ReduceOp

	// Store and Index echo the IR for the executor's row decoding.
	Store string
	Index string

	// LimitInSQL reports that LIMIT/OFFSET were emitted into the
	// statement; the pipeline must not apply them again.
	LimitInSQL bool
}

// CompileSQL lowers an IR to a SQL statement and pipeline for the
// relational backend. quote applies the backend's identifier quoting.
func CompileSQL(q *IR, db *schema.Database, quote key.QuoteFunc) (*SQLPlan, error) {
	st, err := q.Validate(db)
	if err != nil {
		return nil, err
	}
	plan := &SQLPlan{
		Finalize: FinalizeRows,
		Map:      q.Map,
		Reduce:   q.Reduce,
		Limit:    q.Limit,
		Offset:   q.Offset,
		Store:    q.Store,
		Index:    q.Index,
	}

	var conds []string
	var params []interface{}
	for _, w := range q.Wheres {
		ix := st.Index(w.Field)
		if ix == nil && st.KeyPath.Single() != w.Field {
			plan.Filters = append(plan.Filters, Filter{Field: w.Field, Range: w.Range})
			continue
		}
		var sqlFrag string
		var frag []interface{}
		switch {
		case ix == nil:
			sqlFrag, frag = w.Range.ToSQL(schema.PrimaryColumn, quote)
		case ix.KeyPath.IsTuple():
			sqlFrag, frag = w.Range.ToSQLTuple(st.IndexColumns(ix), quote)
		default:
			sqlFrag, frag = w.Range.ToSQL(st.IndexColumns(ix)[0], quote)
		}
		if sqlFrag != "" {
			conds = append(conds, sqlFrag)
			params = append(params, frag...)
		}
	}

	proj, finalize, aggregated := projection(q, st, quote, len(plan.Filters) > 0)
	plan.Finalize = finalize
	if aggregated {
		// The aggregate already folded the stream inside SQL.
		plan.Aggregated = q.Reduce.Op
		plan.Reduce = nil
	}
	plan.KeyProjection = finalize == FinalizeRows && q.Reduce == nil &&
		q.Direction.Unique() && q.Index != "" && len(plan.Filters) == 0

	var b strings.Builder
	b.WriteString("SELECT ")
	// DISTINCT pairs with the key projection; over the record column it
	// would only collapse byte-identical rows and break ORDER BY rules.
	if plan.KeyProjection {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(proj)
	b.WriteString(" FROM ")
	b.WriteString(quote(q.Store))
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if finalize == FinalizeRows {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy(st, q.Index, q.Direction, quote))
		// LIMIT/OFFSET can move into SQL only when no runtime filter
		// could still drop rows.
		if len(plan.Filters) == 0 && (q.Limit > 0 || q.Offset > 0) {
			if q.Limit > 0 {
				b.WriteString(" LIMIT ")
				b.WriteString(strconv.Itoa(q.Limit))
			}
			if q.Offset > 0 {
				b.WriteString(" OFFSET ")
				b.WriteString(strconv.Itoa(q.Offset))
			}
			plan.LimitInSQL = true
		}
	}
	plan.SQL = b.String()
	plan.Params = params
	return plan, nil
}

// projection decides the SELECT list. Aggregates over an indexed field or
// the primary key (and COUNT without a field) lower to the SQL aggregate of
// the same name and finalize by taking the first column of the first row;
// aggregates over non-indexed fields, COUNT included, fall back to a row
// stream folded by the pipeline.
func projection(q *IR, st *schema.Store, quote key.QuoteFunc, hasFilters bool) (string, Finalize, bool) {
	if q.Reduce != nil {
		col, ok := aggregateColumn(q.Reduce, st, quote)
		// A runtime filter drops rows after SQL runs, so the aggregate
		// must fold in the pipeline, not in the statement.
		if ok && !hasFilters {
			switch q.Reduce.Op {
			case ReduceCount:
				return "COUNT(" + col + ")", FinalizeTakeFirst, true
			case ReduceSum:
				return "SUM(" + col + ")", FinalizeTakeFirst, true
			case ReduceAvg:
				return "AVG(" + col + ")", FinalizeTakeFirst, true
			case ReduceMin:
				return "MIN(" + col + ")", FinalizeTakeFirst, true
			case ReduceMax:
				return "MAX(" + col + ")", FinalizeTakeFirst, true
			case ReduceConcat:
				return "GROUP_CONCAT(" + col + ")", FinalizeTakeFirst, true
			}
		}
		// Field is not a column: stream rows, fold in the pipeline.
		return quote(schema.ValueColumn), FinalizeRows, false
	}
	if q.Direction.Unique() && q.Index != "" && !hasFilters {
		// Unique scans project the effective key so DISTINCT collapses
		// equivalence classes. Runtime filters need the record, so they
		// force the value projection and dedup happens downstream.
		cols := st.EffectiveKeyColumns(q.Index)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quote(c)
		}
		return strings.Join(quoted, ", "), FinalizeRows, false
	}
	return quote(schema.ValueColumn), FinalizeRows, false
}

func aggregateColumn(r *ReduceSpec, st *schema.Store, quote key.QuoteFunc) (string, bool) {
	if r.Op == ReduceCount {
		if r.Field == "" {
			return "*", true
		}
	}
	if r.Field == "" {
		return "", false
	}
	if ix := st.Index(r.Field); ix != nil && !ix.KeyPath.IsTuple() {
		return quote(st.IndexColumns(ix)[0]), true
	}
	if st.KeyPath.Single() == r.Field {
		return quote(schema.PrimaryColumn), true
	}
	return "", false
}

// orderBy renders the ORDER BY list for the query's effective key, matching
// the cursor direction.
func orderBy(st *schema.Store, indexName string, dir core.Direction, quote key.QuoteFunc) string {
	dirSQL := " ASC"
	if dir.Reverse() {
		dirSQL = " DESC"
	}
	cols := st.EffectiveKeyColumns(indexName)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = quote(c) + dirSQL
	}
	// Secondary sort on the primary key keeps equal effective keys in a
	// stable order across backends. DISTINCT scans must order only by the
	// projected key, and their classes collapse anyway.
	if indexName != "" && !dir.Unique() {
		for _, c := range st.PrimaryColumns() {
			parts = append(parts, quote(c)+dirSQL)
		}
	}
	return strings.Join(parts, ", ")
}
