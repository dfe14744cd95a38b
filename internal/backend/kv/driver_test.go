package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/backend"
	_ "github.com/rzpsarthak13/unistore/internal/backend/memkv"
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

func openDriver(t *testing.T, typ string) backend.Driver {
	t.Helper()
	drv, err := backend.Probe([]string{typ}, backend.Config{Name: t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = drv.Connect(t.Name(), testSchema()).Await(ctx)
	require.NoError(t, err)
	require.True(t, drv.IsReady())
	return drv
}

func inTx(t *testing.T, drv backend.Driver, mode core.Mode, fn func(tx backend.Tx) error) error {
	t.Helper()
	var result error
	drv.DoTransaction(fn, []string{"st"}, mode, func(kind core.CompletionKind, detail error) {
		if kind != core.CompleteOK {
			result = detail
		}
	})
	return result
}

func TestMemoryDriverCRUD(t *testing.T) {
	drv := openDriver(t, "memory")
	assert.Equal(t, "memory", drv.Type())

	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		for _, id := range []float64{3, 1, 2} {
			if _, err := tx.Put("st", core.Record{"id": id, "k": "x"}, key.Key{}); err != nil {
				return err
			}
		}
		got, err := tx.Get("st", key.Number(1))
		require.NoError(t, err)
		require.NotNil(t, got)

		recs, err := tx.List("st", key.LowerBound(key.Number(2), false))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 2.0, recs[0]["id"])

		n, err := tx.Count("st", key.Range{})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		removed, err := tx.Remove("st", key.Only(key.Number(3)))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryDriverAddCollision(t *testing.T) {
	drv := openDriver(t, "memory")
	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		if _, err := tx.Add("st", core.Record{"id": 7.0, "v": "a"}, key.Key{}); err != nil {
			return err
		}
		_, err := tx.Add("st", core.Record{"id": 7.0, "v": "b"}, key.Key{})
		require.Error(t, err)
		assert.Equal(t, core.KindConstraint, core.KindOf(err))

		got, err := tx.Get("st", key.Number(7))
		require.NoError(t, err)
		assert.Equal(t, "a", got["v"])
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryDriverCursorOverDerivedIndex(t *testing.T) {
	drv := openDriver(t, "memory")
	err := inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		for _, r := range []core.Record{
			{"id": 1.0, "k": "a"},
			{"id": 2.0, "k": "a"},
			{"id": 3.0, "k": "b"},
		} {
			if _, err := tx.Put("st", r, key.Key{}); err != nil {
				return err
			}
		}
		cur, err := tx.OpenCursor(&query.Descriptor{
			Store:     "st",
			Index:     "k",
			Direction: core.DirNextUnique,
		})
		require.NoError(t, err)
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

func TestMemoryPersistsPerProcessSessionDoesNot(t *testing.T) {
	cfg := backend.Config{Name: "shared-db"}

	drv, err := backend.Probe([]string{"memory"}, cfg)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = drv.Connect("shared-db", testSchema()).Await(ctx)
	require.NoError(t, err)
	require.NoError(t, inTx(t, drv, core.ModeReadWrite, func(tx backend.Tx) error {
		_, err := tx.Put("st", core.Record{"id": 1.0}, key.Key{})
		return err
	}))
	drv.Close()

	// The memory mechanism keeps the database for the process lifetime.
	drv2, err := backend.Probe([]string{"memory"}, cfg)
	require.NoError(t, err)
	defer drv2.Close()
	_, err = drv2.Connect("shared-db", testSchema()).Await(ctx)
	require.NoError(t, err)
	require.NoError(t, inTx(t, drv2, core.ModeReadOnly, func(tx backend.Tx) error {
		got, err := tx.Get("st", key.Number(1))
		require.NoError(t, err)
		assert.NotNil(t, got)
		return nil
	}))

	// The session mechanism starts empty every connection.
	drv3, err := backend.Probe([]string{"session"}, cfg)
	require.NoError(t, err)
	defer drv3.Close()
	_, err = drv3.Connect("shared-db", testSchema()).Await(ctx)
	require.NoError(t, err)
	require.NoError(t, inTx(t, drv3, core.ModeReadOnly, func(tx backend.Tx) error {
		got, err := tx.Get("st", key.Number(1))
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	}))
}
