package key

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmpWithinTypes(t *testing.T) {
	assert.Equal(t, -1, Cmp(Number(1), Number(2)))
	assert.Equal(t, 0, Cmp(Number(2), Number(2)))
	assert.Equal(t, 1, Cmp(Number(3), Number(2)))

	assert.Equal(t, -1, Cmp(String("a"), String("b")))
	assert.Equal(t, 0, Cmp(String("b"), String("b")))

	early := Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := Date(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, -1, Cmp(early, late))
	assert.Equal(t, 1, Cmp(late, early))
}

func TestCmpAcrossTypes(t *testing.T) {
	// numbers < dates < strings < tuples
	n := Number(1e12)
	d := Date(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	s := String("")
	tup := Tuple(Number(0))

	assert.Equal(t, -1, Cmp(n, d))
	assert.Equal(t, -1, Cmp(d, s))
	assert.Equal(t, -1, Cmp(s, tup))
	assert.Equal(t, 1, Cmp(tup, n))
}

func TestCmpTuplesLexicographic(t *testing.T) {
	a := Tuple(String("a"), Number(1))
	b := Tuple(String("a"), Number(2))
	c := Tuple(String("b"))
	assert.Equal(t, -1, Cmp(a, b))
	assert.Equal(t, -1, Cmp(b, c))
	// A prefix sorts before its extension.
	assert.Equal(t, -1, Cmp(Tuple(String("a")), a))
}

func TestFromValue(t *testing.T) {
	k, err := FromValue(7)
	require.NoError(t, err)
	assert.True(t, k.IsNumber())
	assert.Equal(t, 7.0, k.Number())

	k, err = FromValue("id-1")
	require.NoError(t, err)
	assert.True(t, k.IsString())

	k, err = FromValue([]interface{}{"a", 2})
	require.NoError(t, err)
	assert.True(t, k.IsTuple())
	assert.Len(t, k.Components(), 2)

	_, err = FromValue(nil)
	assert.Error(t, err)
	_, err = FromValue(struct{}{})
	assert.Error(t, err)
}

func TestRangeContains(t *testing.T) {
	r := Bound(String("m"), String("t"), false, true)
	assert.True(t, r.Contains(String("m")))
	assert.True(t, r.Contains(String("p")))
	assert.False(t, r.Contains(String("t")))
	assert.False(t, r.Contains(String("l")))
	assert.False(t, r.Contains(String("u")))

	only := Only(Number(5))
	assert.True(t, only.Contains(Number(5)))
	assert.False(t, only.Contains(Number(6)))

	assert.True(t, Range{}.Contains(String("anything")))
}

func TestRangeTighten(t *testing.T) {
	r := Bound(Number(1), Number(9), false, false)
	tightened := r.TightenLower(Number(5), false)
	assert.False(t, tightened.Contains(Number(4)))
	assert.True(t, tightened.Contains(Number(5)))
	assert.True(t, tightened.Contains(Number(9)))
	// The original range is unchanged.
	assert.True(t, r.Contains(Number(4)))
}

func TestMergeRejectsDuplicateBounds(t *testing.T) {
	lower := LowerBound(Number(1), false)
	upper := UpperBound(Number(9), true)
	merged, err := Merge(lower, upper)
	require.NoError(t, err)
	assert.True(t, merged.Contains(Number(5)))
	assert.False(t, merged.Contains(Number(9)))

	_, err = Merge(lower, LowerBound(Number(3), false))
	assert.Error(t, err)
}

func TestRangeToSQL(t *testing.T) {
	quote := func(s string) string { return `"` + s + `"` }

	sql, params := Bound(String("m"), String("t"), false, true).ToSQL("k", quote)
	assert.Equal(t, `"k" >= ? AND "k" < ?`, sql)
	assert.Equal(t, []interface{}{"m", "t"}, params)

	sql, params = Only(Number(7)).ToSQL("id", quote)
	assert.Equal(t, `"id" = ?`, sql)
	assert.Equal(t, []interface{}{7.0}, params)

	sql, params = Range{}.ToSQL("id", quote)
	assert.Empty(t, sql)
	assert.Empty(t, params)
}

func TestRangeToSQLTuple(t *testing.T) {
	quote := func(s string) string { return `"` + s + `"` }
	r := Bound(Tuple(String("a"), Number(1)), Tuple(String("b"), Number(9)), false, false)
	sql, params := r.ToSQLTuple([]string{"c0", "c1"}, quote)
	assert.Equal(t, `"c0" >= ? AND "c1" >= ? AND "c0" <= ? AND "c1" <= ?`, sql)
	assert.Len(t, params, 4)
}

func TestCheckType(t *testing.T) {
	assert.NoError(t, Number(1).CheckType(TypeNumber))
	assert.NoError(t, Number(1).CheckType(TypeAny))
	assert.Error(t, Number(1).CheckType(TypeString))
	assert.NoError(t, Key{}.CheckType(TypeString))
}
