// Package backend defines the contract every storage mechanism implements
// and the registry through which the connection manager probes and selects
// one. Implementations live in the subpackages; this package never imports
// them.
package backend

import (
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Driver is one storage mechanism bound to one database. The connection
// manager owns the handle exclusively.
type Driver interface {
	// Type returns the mechanism identifier, e.g. "sqlite" or "memory".
	Type() string

	// Connect opens or creates the database and reconciles the persisted
	// schema with the declared one, upgrading if needed. The returned
	// request resolves once the driver is ready.
	Connect(name string, db *schema.Database) *core.Request

	// DoTransaction runs closure within a backend transaction scoped to
	// stores in the given mode. onComplete fires exactly once. A non-nil
	// closure error rolls the transaction back.
	DoTransaction(closure func(tx Tx) error, stores []string, mode core.Mode, onComplete core.CompleteFunc)

	// Cmp compares two keys consistently with the key package's total
	// order.
	Cmp(a, b key.Key) int

	// IsReady reports whether Connect has succeeded.
	IsReady() bool

	// OnDisconnected registers a callback fired when the backend drops
	// the connection outside of Close.
	OnDisconnected(fn func(error))

	// Close releases the backend handle.
	Close() error
}

// Tx is the per-transaction surface the executors drive. Implementations
// are only valid until their transaction completes; afterwards every method
// fails with InvalidStateError.
type Tx interface {
	// Put upserts a record. An undefined k means the key is taken from
	// the record via the store's key path, or generated for out-of-line
	// stores. Returns the effective primary key.
	Put(store string, rec core.Record, k key.Key) (key.Key, error)

	// Add inserts a record, failing with ConstraintError when the
	// primary key already exists. The prior value is left unchanged.
	Add(store string, rec core.Record, k key.Key) (key.Key, error)

	// Get returns the record under k, or nil when absent. A missing key
	// is not an error.
	Get(store string, k key.Key) (core.Record, error)

	// List returns the records whose primary keys fall in rng, in key
	// order.
	List(store string, rng key.Range) ([]core.Record, error)

	// Count returns the number of records whose primary keys fall in
	// rng.
	Count(store string, rng key.Range) (int, error)

	// Clear removes every record of the store.
	Clear(store string) error

	// Remove deletes the records whose primary keys fall in rng and
	// returns how many were removed.
	Remove(store string, rng key.Range) (int, error)

	// OpenCursor materializes a positioned iterator per the descriptor's
	// store, index, range and direction. Filters, map and reduce are the
	// caller's concern.
	OpenCursor(d *query.Descriptor) (Cursor, error)

	// CreateStore and DropStore mutate the physical schema. Valid only
	// inside a versionchange transaction.
	CreateStore(st *schema.Store) error
	DropStore(name string) error
}

// Cursor is a positioned, seekable iterator over a range of records. The
// accessors return undefined values when the position is not active. A
// cursor is bound to its transaction; use after completion raises
// InvalidStateError.
type Cursor interface {
	// HasCursor reports whether the position is active.
	HasCursor() bool

	// PrimaryKey returns the primary key at the position.
	PrimaryKey() key.Key

	// EffectiveKey returns the key the cursor is ordered by: the index
	// key when iterating an index, the primary key otherwise.
	EffectiveKey() key.Key

	// Value decodes the record at the position.
	Value() (core.Record, error)

	// Advance moves the position forward by n (n >= 1).
	Advance(n int) error

	// ContinueEffectiveKey advances until the effective key reaches or
	// passes k in the cursor's direction. Seeking backwards is an
	// InvalidOperationError.
	ContinueEffectiveKey(k key.Key) error

	// ContinuePrimaryKey advances until the primary key reaches or
	// passes k, or stops on the first row whose effective key differs
	// from the starting one.
	ContinuePrimaryKey(k key.Key) error

	// Update rewrites the record at the current primary key and returns
	// that key. The cursor stays at its position.
	Update(rec core.Record) (key.Key, error)

	// Delete removes the record at the current primary key, returning
	// the rows affected (0 or 1).
	Delete() (int, error)

	// Restart re-issues the scan with the lower bound (in iteration
	// order) tightened to effectiveKey, then skips until primaryKey is
	// reached; with exclusive set the resume position itself is skipped.
	Restart(effectiveKey, primaryKey key.Key, exclusive bool) error

	// Close releases the materialized result set.
	Close() error
}

// SQLTx is the extra capability of relational transactions: executing a
// compiled SQL plan directly. The facade prefers this path when the active
// mechanism is relational.
type SQLTx interface {
	Tx

	// QueryPlan runs the plan's statement and returns the raw result
	// rows; each row is either a decoded record (value projection) or a
	// positional column map for aggregate/key projections.
	QueryPlan(plan *query.SQLPlan) (*SQLResult, error)
}

// SQLResult is a materialized statement result.
type SQLResult struct {
	// Records holds decoded records when the plan projected the value
	// column; nil for aggregate projections.
	Records []core.Record

	// First is the first column of the first row, for
	// FinalizeTakeFirst plans.
	First interface{}

	// Keys holds decoded effective keys for key-only projections.
	Keys []key.Key
}
