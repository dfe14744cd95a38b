// Package sqldb is the shared relational engine: it maps stores onto tables
// through database/sql and emulates native-cursor semantics over
// materialized result sets. Driver-specific wiring (sqlite, mysql) lives in
// sibling packages that register factories against this engine.
package sqldb

import (
	"strings"
)

// Dialect captures the differences between supported SQL engines: identifier
// quoting and the upsert form. Placeholders are ? for both.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string

	// Quote applies the engine's identifier quoting rules.
	Quote(ident string) string

	// ReplaceVerb is the statement verb performing an upsert by primary
	// key.
	ReplaceVerb() string

	// DropIndexSQL renders the statement removing an index from a table.
	DropIndexSQL(table, index string) string
}

// SQLiteDialect quotes with double quotes and upserts via INSERT OR
// REPLACE.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite3" }

func (SQLiteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLiteDialect) ReplaceVerb() string { return "INSERT OR REPLACE INTO" }

func (d SQLiteDialect) DropIndexSQL(table, index string) string {
	return "DROP INDEX IF EXISTS " + d.Quote(index)
}

// MySQLDialect quotes with backticks and upserts via REPLACE.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQLDialect) ReplaceVerb() string { return "REPLACE INTO" }

func (d MySQLDialect) DropIndexSQL(table, index string) string {
	return "DROP INDEX " + d.Quote(index) + " ON " + d.Quote(table)
}
