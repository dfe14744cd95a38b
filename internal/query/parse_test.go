package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

func TestParseSelectStar(t *testing.T) {
	q, err := Parse(`SELECT * FROM "orders"`)
	require.NoError(t, err)
	assert.Equal(t, "orders", q.Store)
	assert.Nil(t, q.Map)
	assert.Nil(t, q.Reduce)
	assert.Equal(t, core.DirNext, q.Direction)
}

func TestParseSelectFields(t *testing.T) {
	q, err := Parse(`select name from "people"`)
	require.NoError(t, err)
	require.NotNil(t, q.Map)
	assert.Equal(t, []string{"name"}, q.Map.Fields)

	q, err = Parse(`SELECT (name, age) FROM "people"`)
	require.NoError(t, err)
	require.NotNil(t, q.Map)
	assert.Equal(t, []string{"name", "age"}, q.Map.Fields)
}

func TestParseAggregates(t *testing.T) {
	q, err := Parse(`SUM(price) FROM "orders"`)
	require.NoError(t, err)
	require.NotNil(t, q.Reduce)
	assert.Equal(t, ReduceSum, q.Reduce.Op)
	assert.Equal(t, "price", q.Reduce.Field)

	q, err = Parse(`COUNT * FROM "orders"`)
	require.NoError(t, err)
	require.NotNil(t, q.Reduce)
	assert.Equal(t, ReduceCount, q.Reduce.Op)
	assert.Empty(t, q.Reduce.Field)

	for _, verb := range []string{"AVG", "MIN", "MAX", "CONCAT"} {
		q, err := Parse(verb + ` price FROM "orders"`)
		require.NoError(t, err, verb)
		require.NotNil(t, q.Reduce, verb)
		assert.Equal(t, "price", q.Reduce.Field, verb)
	}

	_, err = Parse(`SUM FROM "orders"`)
	require.Error(t, err)
	assert.Equal(t, core.KindSqlParse, core.KindOf(err))
}

func TestParseWheres(t *testing.T) {
	q, err := Parse(`SELECT * FROM "st" WHERE k >= 'm' AND k < 't' AND n = 5`)
	require.NoError(t, err)
	require.Len(t, q.Wheres, 2)

	kw := q.Wheres[0]
	assert.Equal(t, "k", kw.Field)
	require.NotNil(t, kw.Range.Lower)
	require.NotNil(t, kw.Range.Upper)
	assert.False(t, kw.Range.LowerOpen)
	assert.True(t, kw.Range.UpperOpen)
	assert.Equal(t, 0, key.Cmp(*kw.Range.Lower, key.String("m")))

	nw := q.Wheres[1]
	assert.Equal(t, "n", nw.Field)
	assert.True(t, nw.Range.Contains(key.Number(5)))
	assert.False(t, nw.Range.Contains(key.Number(6)))
}

func TestParseDuplicateWhereFails(t *testing.T) {
	_, err := Parse(`SELECT * FROM "st" WHERE k = 'a' AND k = 'b'`)
	require.Error(t, err)
	assert.Equal(t, core.KindSqlParse, core.KindOf(err))
}

func TestParseOrderLimitOffset(t *testing.T) {
	q, err := Parse(`SELECT * FROM "st" ORDER BY city DESC LIMIT 10 OFFSET 3`)
	require.NoError(t, err)
	assert.Equal(t, "city", q.Index)
	assert.Equal(t, core.DirPrev, q.Direction)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 3, q.Offset)
}

func TestParsePlaceholders(t *testing.T) {
	q, err := Parse(`SELECT * FROM "st" WHERE k = ?`, "hello")
	require.NoError(t, err)
	require.Len(t, q.Wheres, 1)
	assert.True(t, q.Wheres[0].Range.Contains(key.String("hello")))

	_, err = Parse(`SELECT * FROM "st" WHERE k = ?`)
	require.Error(t, err)
	assert.Equal(t, core.KindArgument, core.KindOf(err))
}

func TestParseRejectsUnsupportedSQL(t *testing.T) {
	cases := []string{
		``,
		`DROP TABLE "st"`,
		`SELECT * FROM "a" JOIN "b"`,
		`SELECT * FROM "st" WHERE k != 3`,
		`SELECT * FROM "st" GROUP BY k`,
		`SELECT * FROM "st" LIMIT x`,
		`SELECT * FROM "st" WHERE`,
		`SELECT * FROM`,
	}
	for _, src := range cases {
		_, err := Parse(src)
		require.Error(t, err, "query %q", src)
		assert.Equal(t, core.KindSqlParse, core.KindOf(err), "query %q", src)
	}
}
