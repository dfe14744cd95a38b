package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

func ordersStore() *Store {
	return &Store{
		Name:    "orders",
		KeyPath: MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*Index{
			{Name: "price", KeyPath: MustKeyPath("price"), Type: key.TypeNumber},
			{Name: "city", KeyPath: MustKeyPath("city"), Type: key.TypeString},
		},
	}
}

func TestStoreSimilar(t *testing.T) {
	a := ordersStore()
	b := ordersStore()
	assert.True(t, a.Similar(b))

	b.Indexes[0].Unique = true
	assert.False(t, a.Similar(b))

	c := ordersStore()
	c.Type = key.TypeString
	assert.False(t, a.Similar(c))

	d := ordersStore()
	d.Indexes = d.Indexes[:1]
	assert.False(t, a.Similar(d))
}

func TestKeyPathNormalization(t *testing.T) {
	kp, err := NewKeyPath("a.b")
	require.NoError(t, err)
	assert.False(t, kp.IsTuple())
	assert.Equal(t, "a.b", kp.Single())

	tup, err := NewKeyPath([]string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, tup.IsTuple())
	assert.Equal(t, "", tup.Single())

	empty, err := NewKeyPath(nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	_, err = NewKeyPath(42)
	assert.Error(t, err)
}

func TestKeyPathResolveAssign(t *testing.T) {
	rec := core.Record{"a": map[string]interface{}{"b": 7.0}, "c": "x"}
	kp := MustKeyPath("a.b")
	v, ok := kp.Resolve(rec)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = MustKeyPath("a.z").Resolve(rec)
	assert.False(t, ok)

	kp.Assign(rec, key.Number(9))
	v, _ = kp.Resolve(rec)
	assert.Equal(t, 9.0, v)

	// Assign creates intermediate maps.
	deep := core.Record{}
	MustKeyPath("x.y.z").Assign(deep, key.String("v"))
	v, ok = MustKeyPath("x.y.z").Resolve(deep)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTupleKeyPathImpliesTupleType(t *testing.T) {
	st := &Store{Name: "t", KeyPath: MustKeyPath([]string{"a", "b"}), Type: key.TypeNumber}
	assert.Equal(t, key.TypeTuple, st.KeyType())

	rec := core.Record{"a": "x", "b": 2.0}
	k, err := st.ExtractKey(rec)
	require.NoError(t, err)
	require.True(t, k.IsTuple())
	assert.Len(t, k.Components(), 2)
}

func TestFixedSchemaRejectsAddStore(t *testing.T) {
	db := NewFixed(1, ordersStore())
	err := db.AddStore(&Store{Name: "extra"})
	require.Error(t, err)
	assert.Equal(t, core.KindConstraint, core.KindOf(err))
	assert.Nil(t, db.Store("extra"))
}

func TestEditableSchemaAddStore(t *testing.T) {
	db := NewEditable(ordersStore())
	require.NoError(t, db.AddStore(&Store{Name: "extra"}))
	assert.NotNil(t, db.Store("extra"))

	err := db.AddStore(&Store{Name: "extra"})
	assert.Equal(t, core.KindConstraint, core.KindOf(err))
}

func TestJSONRoundTrip(t *testing.T) {
	db := NewFixed(3, ordersStore(), &Store{Name: "kvstore"})
	raw, err := db.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(raw)
	require.NoError(t, err)
	assert.True(t, db.Similar(back))
	assert.Equal(t, db.Version, back.Version)

	raw2, err := back.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(raw2))
}

func TestYAMLIngestion(t *testing.T) {
	src := []byte(`
version: 2
stores:
  - name: st
    keyPath: id
    type: number
    indexes:
      - name: k
        type: string
`)
	db, err := FromYAML(src)
	require.NoError(t, err)
	st := db.Store("st")
	require.NotNil(t, st)
	assert.Equal(t, key.TypeNumber, st.Type)
	require.True(t, st.HasIndex("k"))
	// An index without an explicit key path indexes the field it names.
	assert.Equal(t, "k", st.Index("k").KeyPath.Single())
}

func TestAutoVersionFromHash(t *testing.T) {
	a := NewEditable(ordersStore())
	b := NewEditable(ordersStore())
	assert.Equal(t, a.EffectiveVersion(), b.EffectiveVersion())

	c := NewEditable(ordersStore(), &Store{Name: "more"})
	assert.NotEqual(t, a.EffectiveVersion(), c.EffectiveVersion())
	assert.NotZero(t, a.EffectiveVersion())
}

func TestDifference(t *testing.T) {
	a := NewFixed(1, ordersStore(), &Store{Name: "other"})
	b := NewFixed(1, ordersStore())
	delta := a.Difference(b)
	require.Len(t, delta, 1)
	assert.Equal(t, "other", delta[0].Name)
	assert.Empty(t, a.Difference(a))
}

func TestRelationalColumns(t *testing.T) {
	st := ordersStore()
	assert.Equal(t, []string{"pk"}, st.PrimaryColumns())
	assert.Equal(t, []string{"price"}, st.IndexColumns(st.Index("price")))

	tup := &Store{Name: "t", KeyPath: MustKeyPath([]string{"a", "b"})}
	assert.Equal(t, []string{"pk_0", "pk_1"}, tup.PrimaryColumns())

	assert.Equal(t, []string{"pk"}, st.EffectiveKeyColumns(""))
	assert.Equal(t, []string{"city"}, st.EffectiveKeyColumns("city"))
}
