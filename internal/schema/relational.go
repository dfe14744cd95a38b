package schema

import (
	"strconv"

	"github.com/rzpsarthak13/unistore/internal/key"
)

// Relational mapping of a store: one table per store, one column per key
// component plus a serialized record column. The query compiler and the SQL
// engine both derive column names from here so generated statements and DDL
// never drift apart.

// PrimaryColumn is the column holding a scalar primary key.
const PrimaryColumn = "pk"

// ValueColumn holds the JSON-serialized record.
const ValueColumn = "value"

// ExpiresColumn holds the expiration timestamp of default-text-store rows.
const ExpiresColumn = "expires"

// PrimaryColumns returns the column names storing the store's primary key,
// one per tuple component.
func (s *Store) PrimaryColumns() []string {
	if !s.KeyPath.IsTuple() {
		return []string{PrimaryColumn}
	}
	cols := make([]string, len(s.KeyPath.Paths()))
	for i := range cols {
		cols[i] = tupleColumn(PrimaryColumn, i)
	}
	return cols
}

// IndexColumns returns the column names storing one index's key, one per
// tuple component. A scalar index is stored in a column named after it.
func (s *Store) IndexColumns(ix *Index) []string {
	if !ix.KeyPath.IsTuple() {
		return []string{ix.Name}
	}
	cols := make([]string, len(ix.KeyPath.Paths()))
	for i := range cols {
		cols[i] = tupleColumn(ix.Name, i)
	}
	return cols
}

func tupleColumn(base string, i int) string {
	return base + "_" + strconv.Itoa(i)
}

// ColumnSQLType maps a declared key type onto the relational column type.
// Untyped columns default to TEXT, which still round-trips through the key
// codec.
func ColumnSQLType(t key.Type) string {
	switch t {
	case key.TypeNumber:
		return "REAL"
	case key.TypeDate:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// EffectiveKeyColumns returns the columns carrying a query's effective key:
// the index columns when an index is named, the primary-key columns
// otherwise.
func (s *Store) EffectiveKeyColumns(indexName string) []string {
	if indexName == "" {
		return s.PrimaryColumns()
	}
	if ix := s.Index(indexName); ix != nil {
		return s.IndexColumns(ix)
	}
	return []string{indexName}
}
