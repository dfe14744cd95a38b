// Package sqlite wires the shared relational engine to an embedded SQLite
// database. It is the default relational mechanism: with no configuration
// at all it still runs against an in-memory database.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/backend/sqldb"
)

func init() {
	backend.Register(factory{})
}

type factory struct{}

func (factory) Type() string { return "sqlite" }

// IsSupported is unconditionally true: the engine is embedded and needs no
// external service.
func (factory) IsSupported(backend.Config) bool { return true }

func (factory) Create(cfg backend.Config) (backend.Driver, error) {
	path := cfg.Path
	if path == "" {
		if cfg.Name != "" {
			path = cfg.Name + ".sqlite"
		} else {
			path = ":memory:"
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// and keeps :memory: databases on one handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if cfg.Size > 0 {
		// Size hint maps onto the page cache, expressed in KiB.
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = -%d", cfg.Size/1024))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return sqldb.NewEngine("sqlite", sqldb.SQLiteDialect{}, db), nil
}
