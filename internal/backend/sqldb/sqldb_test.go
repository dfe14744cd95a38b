package sqldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/backend"
	_ "github.com/rzpsarthak13/unistore/internal/backend/sqlite"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

func testSchema() *schema.Database {
	return schema.NewFixed(1, &schema.Store{
		Name:    "st",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "k", KeyPath: schema.MustKeyPath("k"), Type: key.TypeString},
		},
	})
}

func openDriver(t *testing.T) backend.Driver {
	t.Helper()
	drv, err := backend.Probe([]string{"sqlite"}, backend.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = drv.Connect("testdb", testSchema()).Await(ctx)
	require.NoError(t, err)
	require.True(t, drv.IsReady())
	assert.Equal(t, "sqlite", drv.Type())
	return drv
}

// inTx runs fn inside one transaction and returns the completion error.
func inTx(t *testing.T, drv backend.Driver, mode core.Mode, fn func(tx backend.Tx) error) error {
	t.Helper()
	var result error
	fired := 0
	drv.DoTransaction(fn, []string{"st"}, mode, func(kind core.CompletionKind, detail error) {
		fired++
		if kind != core.CompleteOK {
			result = detail
		}
	})
	require.Equal(t, 1, fired, "onComplete must fire exactly once")
	return result
}

func seed(t *testing.T, drv backend.Driver, recs ...core.Record) {
	t.Helper()
	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		for _, rec := range recs {
			if _, err := tx.Put("st", rec, key.Key{}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func rec(id float64, k string) core.Record {
	return core.Record{"id": id, "k": k}
}

func TestPutGetRoundTrip(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(7, "a"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		got, err := tx.Get("st", key.Number(7))
		require.NoError(t, err)
		assert.Equal(t, core.Record{"id": 7.0, "k": "a"}, got)

		missing, err := tx.Get("st", key.Number(99))
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}

func TestAddCollisionKeepsPriorValue(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, core.Record{"id": 7.0, "v": "a", "k": "x"})

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		_, err := tx.Add("st", core.Record{"id": 7.0, "v": "b", "k": "y"}, key.Key{})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, core.KindConstraint, core.KindOf(err))

	err = inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		got, err := tx.Get("st", key.Number(7))
		require.NoError(t, err)
		assert.Equal(t, "a", got["v"])
		return nil
	})
	require.NoError(t, err)
}

func TestListCountRemoveClear(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"), rec(3, "c"), rec(4, "d"))

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		recs, err := tx.List("st", key.Range{})
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, 1.0, recs[0]["id"])
		assert.Equal(t, 4.0, recs[3]["id"])

		n, err := tx.Count("st", key.Bound(key.Number(2), key.Number(4), false, true))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		removed, err := tx.Remove("st", key.Bound(key.Number(1), key.Number(2), false, false))
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		if err := tx.Clear("st"); err != nil {
			return err
		}
		n, err = tx.Count("st", key.Range{})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	})
	require.NoError(t, err)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	drv := openDriver(t)
	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		_, err := tx.Put("st", rec(1, "a"), key.Key{})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidState, core.KindOf(err))
}

func TestClosureErrorRollsBack(t *testing.T) {
	drv := openDriver(t)
	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		if _, err := tx.Put("st", rec(1, "a"), key.Key{}); err != nil {
			return err
		}
		return core.NewError(core.KindInternal, "forced failure")
	})
	require.Error(t, err)

	err = inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		got, err := tx.Get("st", key.Number(1))
		require.NoError(t, err)
		assert.Nil(t, got, "rolled-back write must not be visible")
		return nil
	})
	require.NoError(t, err)
}

func openCursor(t *testing.T, tx backend.Tx, d *query.Descriptor) backend.Cursor {
	t.Helper()
	cur, err := tx.OpenCursor(d)
	require.NoError(t, err)
	return cur
}

func TestCursorRangeScan(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "l"), rec(2, "m"), rec(3, "p"), rec(4, "t"), rec(5, "u"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{
			Store: "st",
			Index: "k",
			Range: key.Bound(key.String("m"), key.String("t"), false, true),
		})
		var got []string
		for cur.HasCursor() {
			got = append(got, cur.EffectiveKey().Str())
			require.NoError(t, cur.Advance(1))
		}
		assert.Equal(t, []string{"m", "p"}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestCursorReverse(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"), rec(3, "c"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{
			Store:     "st",
			Index:     "k",
			Direction: core.DirPrev,
		})
		var got []string
		for cur.HasCursor() {
			got = append(got, cur.EffectiveKey().Str())
			require.NoError(t, cur.Advance(1))
		}
		assert.Equal(t, []string{"c", "b", "a"}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestCursorUniqueSuppressesDuplicates(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "a"), rec(3, "b"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{
			Store:     "st",
			Index:     "k",
			Direction: core.DirNextUnique,
		})
		var got []string
		for cur.HasCursor() {
			got = append(got, cur.EffectiveKey().Str())
			require.NoError(t, cur.Advance(1))
		}
		assert.Equal(t, []string{"a", "b"}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestCursorAdvance(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"), rec(3, "c"), rec(4, "d"), rec(5, "e"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st"})
		assert.Equal(t, 1.0, cur.PrimaryKey().Number())

		require.NoError(t, cur.Advance(2))
		assert.Equal(t, 3.0, cur.PrimaryKey().Number())

		err := cur.Advance(0)
		require.Error(t, err)
		assert.Equal(t, core.KindArgument, core.KindOf(err))

		require.NoError(t, cur.Advance(10))
		assert.False(t, cur.HasCursor())
		assert.False(t, cur.PrimaryKey().Defined())
		return nil
	})
	require.NoError(t, err)
}

func TestCursorContinueEffectiveKey(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "a"), rec(3, "b"), rec(4, "d"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st", Index: "k"})

		require.NoError(t, cur.ContinueEffectiveKey(key.String("b")))
		assert.Equal(t, "b", cur.EffectiveKey().Str())

		// Seeking to a key between stored keys lands on the next one.
		require.NoError(t, cur.ContinueEffectiveKey(key.String("c")))
		assert.Equal(t, "d", cur.EffectiveKey().Str())

		// Moving backwards is a fatal misuse.
		err := cur.ContinueEffectiveKey(key.String("a"))
		require.Error(t, err)
		assert.Equal(t, core.KindInvalidOperation, core.KindOf(err))

		// Past the end: exhausted, not an error.
		require.NoError(t, cur.ContinueEffectiveKey(key.String("z")))
		assert.False(t, cur.HasCursor())
		return nil
	})
	require.NoError(t, err)
}

func TestCursorContinuePrimaryKeyStopsAtClassEdge(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "a"), rec(3, "b"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st", Index: "k"})
		assert.Equal(t, 1.0, cur.PrimaryKey().Number())

		// Primary-key continuation stops on the first row of the next
		// index-key class, even when the target is beyond it.
		require.NoError(t, cur.ContinuePrimaryKey(key.Number(99)))
		assert.Equal(t, "b", cur.EffectiveKey().Str())
		assert.Equal(t, 3.0, cur.PrimaryKey().Number())
		return nil
	})
	require.NoError(t, err)
}

func TestCursorContinuePrimaryKeyWithinClass(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "a"), rec(3, "a"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st", Index: "k"})
		require.NoError(t, cur.ContinuePrimaryKey(key.Number(2)))
		assert.Equal(t, 2.0, cur.PrimaryKey().Number())
		return nil
	})
	require.NoError(t, err)
}

func TestCursorUpdateKeepsPosition(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"))

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st"})
		require.NoError(t, cur.Advance(1))
		require.Equal(t, 2.0, cur.PrimaryKey().Number())

		pk, err := cur.Update(core.Record{"id": 2.0, "k": "b", "v": "patched"})
		require.NoError(t, err)
		assert.Equal(t, 2.0, pk.Number())
		assert.Equal(t, 2.0, cur.PrimaryKey().Number())

		got, err := tx.Get("st", key.Number(2))
		require.NoError(t, err)
		assert.Equal(t, "patched", got["v"])

		val, err := cur.Value()
		require.NoError(t, err)
		assert.Equal(t, "patched", val["v"])
		return nil
	})
	require.NoError(t, err)
}

func TestCursorUpdateThroughIndexNotImplemented(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"))

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st", Index: "k"})
		_, err := cur.Update(core.Record{"id": 1.0, "k": "z"})
		require.Error(t, err)
		assert.Equal(t, core.KindNotImplemented, core.KindOf(err))
		return nil
	})
	require.NoError(t, err)
}

func TestCursorDelete(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"))

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st"})
		n, err := cur.Delete()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := tx.Get("st", key.Number(1))
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestCursorRestartResumesAfterPrimaryKey(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"), rec(2, "b"), rec(3, "c"), rec(4, "d"))

	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		cur := openCursor(t, tx, &query.Descriptor{Store: "st", Index: "k"})
		require.NoError(t, cur.Restart(key.String("b"), key.Number(2), false))
		assert.Equal(t, "b", cur.EffectiveKey().Str())
		assert.Equal(t, 2.0, cur.PrimaryKey().Number())

		require.NoError(t, cur.Restart(key.String("b"), key.Number(2), true))
		assert.Equal(t, "c", cur.EffectiveKey().Str())
		return nil
	})
	require.NoError(t, err)
}

func TestCursorInvalidOutsideTransaction(t *testing.T) {
	drv := openDriver(t)
	seed(t, drv, rec(1, "a"))

	var escaped backend.Cursor
	err := inTx(t, drv, core.ModeReadOnly, func(tx backend.Tx) error {
		escaped = openCursor(t, tx, &query.Descriptor{Store: "st"})
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, escaped)

	advErr := escaped.Advance(1)
	require.Error(t, advErr)
	assert.Equal(t, core.KindInvalidState, core.KindOf(advErr))
}

func TestQueryPlanAggregate(t *testing.T) {
	drv, err := backend.Probe([]string{"sqlite"}, backend.Config{})
	require.NoError(t, err)
	defer drv.Close()

	db := schema.NewFixed(1, &schema.Store{
		Name:    "orders",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "price", KeyPath: schema.MustKeyPath("price"), Type: key.TypeNumber},
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = drv.Connect("aggdb", db).Await(ctx)
	require.NoError(t, err)

	quote := drv.(interface{ Quote(string) string }).Quote
	var sum interface{}
	drv.DoTransaction(func(tx backend.Tx) error {
		for i, price := range []float64{1, 2, 3, 4} {
			if _, err := tx.Put("orders", core.Record{"id": float64(i + 1), "price": price}, key.Key{}); err != nil {
				return err
			}
		}
		plan, err := query.CompileSQL(&query.IR{
			Store:  "orders",
			Reduce: &query.ReduceSpec{Op: query.ReduceSum, Field: "price"},
		}, db, quote)
		if err != nil {
			return err
		}
		res, err := tx.(backend.SQLTx).QueryPlan(plan)
		if err != nil {
			return err
		}
		sum = res.First
		return nil
	}, []string{"orders"}, core.ModeReadWrite, func(kind core.CompletionKind, detail error) {
		require.Equal(t, core.CompleteOK, kind, "detail: %v", detail)
	})
	assert.Equal(t, 10.0, sum)
}
