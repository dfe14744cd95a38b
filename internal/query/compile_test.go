package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

func testDB() *schema.Database {
	return schema.NewFixed(1, &schema.Store{
		Name:    "orders",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "price", KeyPath: schema.MustKeyPath("price"), Type: key.TypeNumber},
			{Name: "city", KeyPath: schema.MustKeyPath("city"), Type: key.TypeString},
		},
	})
}

func TestCompileNativePicksFirstIndexedWhere(t *testing.T) {
	q := &IR{
		Store: "orders",
		Wheres: []key.Where{
			{Field: "status", Range: key.Only(key.String("open"))},
			{Field: "price", Range: key.LowerBound(key.Number(10), false)},
			{Field: "city", Range: key.Only(key.String("pune"))},
		},
	}
	d, err := CompileNative(q, testDB())
	require.NoError(t, err)
	assert.Equal(t, "price", d.Index)
	require.NotNil(t, d.Range.Lower)
	require.Len(t, d.Filters, 2)
	assert.Equal(t, "status", d.Filters[0].Field)
	assert.Equal(t, "city", d.Filters[1].Field)
}

func TestCompileNativeNamedIndexWins(t *testing.T) {
	q := &IR{
		Store: "orders",
		Index: "city",
		Wheres: []key.Where{
			{Field: "price", Range: key.LowerBound(key.Number(10), false)},
			{Field: "city", Range: key.Only(key.String("pune"))},
		},
	}
	d, err := CompileNative(q, testDB())
	require.NoError(t, err)
	assert.Equal(t, "city", d.Index)
	// The where on the named index supplies the range; price filters.
	require.NotNil(t, d.Range.Lower)
	assert.True(t, d.Range.Contains(key.String("pune")))
	require.Len(t, d.Filters, 1)
	assert.Equal(t, "price", d.Filters[0].Field)
}

func TestCompileValidation(t *testing.T) {
	_, err := CompileNative(&IR{Store: "nope"}, testDB())
	assert.Equal(t, core.KindConstraint, core.KindOf(err))

	_, err = CompileNative(&IR{Store: "orders", Index: "nope"}, testDB())
	assert.Equal(t, core.KindConstraint, core.KindOf(err))

	_, err = CompileNative(&IR{Store: "orders", Direction: "sideways"}, testDB())
	assert.Equal(t, core.KindArgument, core.KindOf(err))

	dup := &IR{Store: "orders", Wheres: []key.Where{
		{Field: "price", Range: key.Only(key.Number(1))},
		{Field: "price", Range: key.Only(key.Number(2))},
	}}
	_, err = CompileNative(dup, testDB())
	assert.Equal(t, core.KindSqlParse, core.KindOf(err))
}

func TestFilterMatch(t *testing.T) {
	f := Filter{Field: "price", Range: key.Bound(key.Number(2), key.Number(4), false, true)}
	assert.True(t, f.Match(core.Record{"price": 2.0}))
	assert.True(t, f.Match(core.Record{"price": 3.0}))
	assert.False(t, f.Match(core.Record{"price": 4.0}))
	assert.False(t, f.Match(core.Record{"other": 3.0}))
}

func TestMapSpecProjection(t *testing.T) {
	rec := core.Record{"a": 1.0, "b": "x", "c": true}

	var nilSpec *MapSpec
	assert.Equal(t, rec, nilSpec.ProjectRow(rec))

	one := &MapSpec{Fields: []string{"b"}}
	assert.Equal(t, "x", one.ProjectRow(rec))

	many := &MapSpec{Fields: []string{"a", "b"}}
	assert.Equal(t, core.Record{"a": 1.0, "b": "x"}, many.ProjectRow(rec))
}

func TestAccumulatorCountSum(t *testing.T) {
	count := NewAccumulator(ReduceCount)
	for i := 0; i < 4; i++ {
		count.Add(nil)
	}
	assert.Equal(t, 4, count.Result())

	sum := NewAccumulator(ReduceSum)
	for _, v := range []interface{}{1, 2.0, int64(3), 4} {
		sum.Add(v)
	}
	assert.Equal(t, 10.0, sum.Result())
	assert.Equal(t, 0.0, NewAccumulator(ReduceSum).Result())
}

func TestAccumulatorAvgIncrementalMean(t *testing.T) {
	avg := NewAccumulator(ReduceAvg)
	assert.Nil(t, avg.Result())
	for _, v := range []float64{1, 2, 3, 4} {
		avg.Add(v)
	}
	assert.InDelta(t, 2.5, avg.Result().(float64), 1e-9)
}

func TestAccumulatorMinMax(t *testing.T) {
	min := NewAccumulator(ReduceMin)
	max := NewAccumulator(ReduceMax)
	assert.Nil(t, min.Result())
	assert.Nil(t, max.Result())
	for _, v := range []float64{3, 1, 4, 1, 5} {
		min.Add(v)
		max.Add(v)
	}
	assert.Equal(t, 1.0, min.Result())
	assert.Equal(t, 5.0, max.Result())
}

func TestAccumulatorConcat(t *testing.T) {
	c := NewAccumulator(ReduceConcat)
	c.Add("a")
	c.Add("b")
	c.Add(3)
	assert.Equal(t, "a,b,3", c.Result())
}
