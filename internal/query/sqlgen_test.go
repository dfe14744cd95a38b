package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

func quoteSQLite(ident string) string { return `"` + ident + `"` }

func compileGolden(t *testing.T, name string, q *IR) *SQLPlan {
	t.Helper()
	plan, err := CompileSQL(q, testDB(), quoteSQLite)
	require.NoError(t, err)
	g := goldie.New(t)
	g.Assert(t, name, []byte(plan.SQL))
	return plan
}

func TestCompileSQLSelectAll(t *testing.T) {
	plan := compileGolden(t, "select_all", &IR{Store: "orders"})
	assert.Empty(t, plan.Params)
	assert.Equal(t, FinalizeRows, plan.Finalize)
	assert.False(t, plan.KeyProjection)
}

func TestCompileSQLIndexedWhere(t *testing.T) {
	plan := compileGolden(t, "where_range", &IR{
		Store: "orders",
		Wheres: []key.Where{
			{Field: "price", Range: key.Bound(key.Number(2), key.Number(4), false, true)},
		},
	})
	assert.Equal(t, []interface{}{2.0, 4.0}, plan.Params)
	assert.Empty(t, plan.Filters)
}

func TestCompileSQLNonIndexedWhereStaysAsFilter(t *testing.T) {
	plan := compileGolden(t, "where_nonindexed", &IR{
		Store: "orders",
		Wheres: []key.Where{
			{Field: "status", Range: key.Only(key.String("open"))},
		},
	})
	assert.Empty(t, plan.Params)
	require.Len(t, plan.Filters, 1)
	assert.Equal(t, "status", plan.Filters[0].Field)
}

func TestCompileSQLOrderLimit(t *testing.T) {
	plan := compileGolden(t, "order_desc_limit", &IR{
		Store:     "orders",
		Index:     "city",
		Direction: core.DirPrev,
		Limit:     2,
		Offset:    1,
	})
	assert.True(t, plan.LimitInSQL)
}

func TestCompileSQLAggregates(t *testing.T) {
	plan := compileGolden(t, "sum_indexed", &IR{
		Store:  "orders",
		Reduce: &ReduceSpec{Op: ReduceSum, Field: "price"},
	})
	assert.Equal(t, FinalizeTakeFirst, plan.Finalize)
	assert.Equal(t, ReduceSum, plan.Aggregated)
	assert.Nil(t, plan.Reduce)

	plan = compileGolden(t, "count_star", &IR{
		Store:  "orders",
		Reduce: &ReduceSpec{Op: ReduceCount},
	})
	assert.Equal(t, FinalizeTakeFirst, plan.Finalize)
	assert.Equal(t, ReduceCount, plan.Aggregated)
}

func TestCompileSQLAggregateOverNonIndexedFieldFoldsInPipeline(t *testing.T) {
	plan := compileGolden(t, "avg_nonindexed", &IR{
		Store:  "orders",
		Reduce: &ReduceSpec{Op: ReduceAvg, Field: "qty"},
	})
	assert.Equal(t, FinalizeRows, plan.Finalize)
	require.NotNil(t, plan.Reduce)
	assert.Equal(t, ReduceAvg, plan.Reduce.Op)
	assert.Empty(t, plan.Aggregated)
}

func TestCompileSQLUniqueScanProjectsDistinctKeys(t *testing.T) {
	plan := compileGolden(t, "unique_city", &IR{
		Store:     "orders",
		Index:     "city",
		Direction: core.DirNextUnique,
	})
	assert.True(t, plan.KeyProjection)
}
