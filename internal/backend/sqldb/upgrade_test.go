package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

func openFileEngine(t *testing.T, path string) *Engine {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	e := NewEngine("sqlite", SQLiteDialect{}, db)
	t.Cleanup(func() { e.Close() })
	return e
}

func connect(t *testing.T, e *Engine, db *schema.Database) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.Connect("updb", db).Await(ctx)
	require.NoError(t, err)
}

func indexExists(t *testing.T, e *Engine, name string) bool {
	t.Helper()
	row := e.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", name)
	var n int
	require.NoError(t, row.Scan(&n))
	return n > 0
}

func TestUpgradeDropsRemovedIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade.sqlite")

	withExtra := schema.NewFixed(1, &schema.Store{
		Name:    "st",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "k", KeyPath: schema.MustKeyPath("k"), Type: key.TypeString},
			{Name: "extra", KeyPath: schema.MustKeyPath("extra"), Type: key.TypeString},
		},
	})
	e := openFileEngine(t, path)
	connect(t, e, withExtra)
	assert.True(t, indexExists(t, e, "st_k"))
	assert.True(t, indexExists(t, e, "st_extra"))
	require.NoError(t, e.Close())

	// Reconnecting with the index removed from the declaration drops the
	// SQL index during reconciliation.
	without := schema.NewFixed(2, &schema.Store{
		Name:    "st",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "k", KeyPath: schema.MustKeyPath("k"), Type: key.TypeString},
		},
	})
	e2 := openFileEngine(t, path)
	connect(t, e2, without)
	assert.True(t, indexExists(t, e2, "st_k"))
	assert.False(t, indexExists(t, e2, "st_extra"))

	// A similar schema on the next connect leaves everything untouched.
	e3Schema := schema.NewFixed(2, &schema.Store{
		Name:    "st",
		KeyPath: schema.MustKeyPath("id"),
		Type:    key.TypeNumber,
		Indexes: []*schema.Index{
			{Name: "k", KeyPath: schema.MustKeyPath("k"), Type: key.TypeString},
		},
	})
	require.NoError(t, e2.Close())
	e3 := openFileEngine(t, path)
	connect(t, e3, e3Schema)
	assert.True(t, indexExists(t, e3, "st_k"))
	assert.False(t, indexExists(t, e3, "st_extra"))
}

func TestDropIndexSQLDialects(t *testing.T) {
	assert.Equal(t, `DROP INDEX IF EXISTS "st_extra"`, SQLiteDialect{}.DropIndexSQL("st", "st_extra"))
	assert.Equal(t, "DROP INDEX `st_extra` ON `st`", MySQLDialect{}.DropIndexSQL("st", "st_extra"))
}
