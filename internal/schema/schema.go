// Package schema models the logical database layout: stores, indexes, key
// paths and key types, plus comparison and reconciliation between a declared
// schema and the one a backend has persisted.
package schema

import (
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

// Index declares a secondary ordering over a store's records.
type Index struct {
	Name       string
	KeyPath    KeyPath
	Type       key.Type
	Unique     bool
	MultiEntry bool
}

// Similar reports whether two index declarations agree on every field.
func (ix *Index) Similar(other *Index) bool {
	if ix == nil || other == nil {
		return ix == other
	}
	return ix.Name == other.Name &&
		ix.KeyPath.Equal(other.KeyPath) &&
		ix.Type == other.Type &&
		ix.Unique == other.Unique &&
		ix.MultiEntry == other.MultiEntry
}

// Store declares a named record collection with an optional in-record
// primary key and secondary indexes.
type Store struct {
	Name          string
	KeyPath       KeyPath
	Type          key.Type
	AutoIncrement bool
	Indexes       []*Index
}

// Index returns the declared index with the given name, or nil.
func (s *Store) Index(name string) *Index {
	for _, ix := range s.Indexes {
		if ix.Name == name {
			return ix
		}
	}
	return nil
}

// HasIndex reports whether field names a declared index of the store.
func (s *Store) HasIndex(field string) bool {
	return s.Index(field) != nil
}

// IndexByKeyPath returns the first index whose key path is exactly the given
// single field, or nil.
func (s *Store) IndexByKeyPath(field string) *Index {
	for _, ix := range s.Indexes {
		if ix.KeyPath.Single() == field {
			return ix
		}
	}
	return nil
}

// OutOfLine reports whether the store keeps keys outside its records.
func (s *Store) OutOfLine() bool {
	return s.KeyPath.Empty()
}

// KeyType returns the declared primary-key type; a tuple key path forces the
// tuple type regardless of declaration.
func (s *Store) KeyType() key.Type {
	if s.KeyPath.IsTuple() {
		return key.TypeTuple
	}
	return s.Type
}

// Similar reports whether two store declarations agree on name, key path,
// type and every index. Similarity governs whether a schema change needs a
// version upgrade.
func (s *Store) Similar(other *Store) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Name != other.Name || !s.KeyPath.Equal(other.KeyPath) ||
		s.Type != other.Type || s.AutoIncrement != other.AutoIncrement {
		return false
	}
	if len(s.Indexes) != len(other.Indexes) {
		return false
	}
	for _, ix := range s.Indexes {
		if !ix.Similar(other.Index(ix.Name)) {
			return false
		}
	}
	return true
}

// ExtractKey pulls the primary key out of a record via the store's key path.
// Returns an undefined Key for out-of-line stores or when the path is absent
// from the record.
func (s *Store) ExtractKey(rec core.Record) (key.Key, error) {
	if s.OutOfLine() {
		return key.Key{}, nil
	}
	v, ok := s.KeyPath.Resolve(rec)
	if !ok {
		return key.Key{}, nil
	}
	k, err := key.FromValue(v)
	if err != nil {
		return key.Key{}, err
	}
	if err := k.CheckType(s.KeyType()); err != nil {
		return key.Key{}, err
	}
	return k, nil
}

// InjectKey writes k into the record at the store's key path. No-op for
// out-of-line stores.
func (s *Store) InjectKey(rec core.Record, k key.Key) {
	if s.OutOfLine() || !k.Defined() {
		return
	}
	s.KeyPath.Assign(rec, k)
}

// ExtractIndexKey evaluates an index's key path against a record.
func (s *Store) ExtractIndexKey(ix *Index, rec core.Record) (key.Key, error) {
	v, ok := ix.KeyPath.Resolve(rec)
	if !ok {
		return key.Key{}, nil
	}
	k, err := key.FromValue(v)
	if err != nil {
		return key.Key{}, err
	}
	if ix.KeyPath.IsTuple() {
		if err := k.CheckType(key.TypeTuple); err != nil {
			return key.Key{}, err
		}
		return k, nil
	}
	if err := k.CheckType(ix.Type); err != nil {
		return key.Key{}, err
	}
	return k, nil
}

// Database is the full declared schema: a set of stores plus the editing and
// versioning policy. A fixed database rejects runtime store additions; an
// editable one accepts them.
type Database struct {
	Version  uint32
	Stores   []*Store
	editable bool
	autoVer  bool
}

// NewFixed builds a schema whose store set is sealed; adding a store later
// fails with ConstraintError.
func NewFixed(version uint32, stores ...*Store) *Database {
	return &Database{Version: version, Stores: stores}
}

// NewEditable builds an auto-schema database: stores may be added at
// runtime and the version is derived from the schema content.
func NewEditable(stores ...*Store) *Database {
	return &Database{Stores: stores, editable: true, autoVer: true}
}

// Editable reports whether stores may be added at runtime.
func (db *Database) Editable() bool { return db.editable }

// AutoVersion reports whether the version number is derived from the schema
// hash rather than declared.
func (db *Database) AutoVersion() bool { return db.autoVer }

// Store returns the declared store with the given name, or nil.
func (db *Database) Store(name string) *Store {
	for _, s := range db.Stores {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StoreNames lists every declared store name in declaration order.
func (db *Database) StoreNames() []string {
	names := make([]string, len(db.Stores))
	for i, s := range db.Stores {
		names[i] = s.Name
	}
	return names
}

// HasIndex reports whether the named store declares an index on field.
func (db *Database) HasIndex(storeName, field string) bool {
	s := db.Store(storeName)
	return s != nil && s.HasIndex(field)
}

// AddStore appends a store declaration. Only editable (auto-schema)
// databases accept additions; a fixed database fails with ConstraintError.
func (db *Database) AddStore(s *Store) error {
	if !db.editable {
		return core.NewError(core.KindConstraint, "schema is not editable, store %q requires a version change", s.Name)
	}
	if db.Store(s.Name) != nil {
		return core.NewError(core.KindConstraint, "store %q already exists", s.Name)
	}
	db.Stores = append(db.Stores, s)
	return nil
}

// Similar reports whether two database schemas declare similar store sets.
func (db *Database) Similar(other *Database) bool {
	if len(db.Stores) != len(other.Stores) {
		return false
	}
	for _, s := range db.Stores {
		if !s.Similar(other.Store(s.Name)) {
			return false
		}
	}
	return true
}

// Difference lists stores of db that are missing or not similar in other.
// The connection manager applies this delta inside a versionchange
// transaction.
func (db *Database) Difference(other *Database) []*Store {
	var delta []*Store
	for _, s := range db.Stores {
		if !s.Similar(other.Store(s.Name)) {
			delta = append(delta, s)
		}
	}
	return delta
}
