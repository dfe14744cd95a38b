package sqldb

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// metaTable persists the reconciled schema JSON so the next Connect can
// detect non-similar changes.
const metaTable = "unistore_schema"

// Engine implements backend.Driver over a database/sql handle.
type Engine struct {
	typ     string
	dialect Dialect
	db      *sql.DB

	mu       sync.Mutex
	name     string
	schema   *schema.Database
	ready    bool
	closed   bool
	onDisc   []func(error)
	txSerial sync.Mutex // one logical executor per connection
}

// NewEngine wraps an opened database handle.
func NewEngine(typ string, dialect Dialect, db *sql.DB) *Engine {
	return &Engine{typ: typ, dialect: dialect, db: db}
}

// Type returns the mechanism identifier.
func (e *Engine) Type() string { return e.typ }

// Quote applies the dialect's identifier quoting; the query compiler uses
// it when generating SQL for this engine.
func (e *Engine) Quote(ident string) string { return e.dialect.Quote(ident) }

// Cmp compares keys with the shared total order.
func (e *Engine) Cmp(a, b key.Key) int { return key.Cmp(a, b) }

// IsReady reports whether Connect succeeded.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// OnDisconnected registers a drop callback.
func (e *Engine) OnDisconnected(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDisc = append(e.onDisc, fn)
}

// Close releases the handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.ready = false
	return e.db.Close()
}

// Connect verifies the handle, loads the persisted schema, applies any
// non-similar delta inside one transaction, and flips the engine to ready.
func (e *Engine) Connect(name string, db *schema.Database) *core.Request {
	req := core.NewRequest()
	go func() {
		if err := e.connect(name, db); err != nil {
			req.Reject(err)
			return
		}
		req.Resolve(nil)
	}()
	return req
}

func (e *Engine) connect(name string, db *schema.Database) error {
	if err := e.db.Ping(); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot reach %s database %q", e.typ, name)
	}
	if err := e.ensureMetaTable(); err != nil {
		return err
	}
	persisted, err := e.loadPersistedSchema(name)
	if err != nil {
		return err
	}
	if persisted == nil || !db.Similar(persisted) {
		if err := e.upgrade(name, db, persisted); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.name = name
	e.schema = db
	e.ready = true
	e.mu.Unlock()
	log.Printf("[SQLDB] connected %s database %q (version %d)", e.typ, name, db.EffectiveVersion())
	return nil
}

func (e *Engine) ensureMetaTable() error {
	q := e.dialect.Quote
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT)",
		q(metaTable), q("name"), q("schema"))
	if _, err := e.db.Exec(ddl); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot create schema table")
	}
	return nil
}

func (e *Engine) loadPersistedSchema(name string) (*schema.Database, error) {
	q := e.dialect.Quote
	row := e.db.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", q("schema"), q(metaTable), q("name")), name)
	var raw string
	switch err := row.Scan(&raw); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, core.WrapError(core.KindInternal, err, "cannot load persisted schema")
	}
	return schema.FromJSON([]byte(raw))
}

// upgrade is the engine's versionchange path: create tables and indexes for
// stores that are new or changed, drop indexes the declaration no longer
// carries, then persist the schema JSON.
func (e *Engine) upgrade(name string, db, persisted *schema.Database) error {
	tx, err := e.db.Begin()
	if err != nil {
		return core.WrapError(core.KindInternal, err, "cannot begin upgrade transaction")
	}
	delta := db.Stores
	if persisted != nil {
		delta = db.Difference(persisted)
	}
	for _, st := range delta {
		if err := e.createStoreTable(tx, st); err != nil {
			tx.Rollback()
			return err
		}
	}
	if persisted != nil {
		if err := e.dropRemovedIndexes(tx, db, persisted); err != nil {
			tx.Rollback()
			return err
		}
	}
	raw, err := db.ToJSON()
	if err != nil {
		tx.Rollback()
		return core.WrapError(core.KindInternal, err, "cannot serialize schema")
	}
	q := e.dialect.Quote
	stmt := fmt.Sprintf("%s %s (%s, %s) VALUES (?, ?)", e.dialect.ReplaceVerb(), q(metaTable), q("name"), q("schema"))
	if _, err := tx.Exec(stmt, name, string(raw)); err != nil {
		tx.Rollback()
		return core.WrapError(core.KindInternal, err, "cannot persist schema")
	}
	if err := tx.Commit(); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot commit upgrade")
	}
	return nil
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// dropRemovedIndexes removes the SQL index of every persisted index that the
// declared schema no longer carries. The index columns stay in the table;
// only the ordering structure is dropped.
func (e *Engine) dropRemovedIndexes(ex execer, db, persisted *schema.Database) error {
	for _, old := range persisted.Stores {
		st := db.Store(old.Name)
		if st == nil {
			continue
		}
		for _, oix := range old.Indexes {
			if st.Index(oix.Name) != nil {
				continue
			}
			stmt := e.dialect.DropIndexSQL(old.Name, old.Name+"_"+oix.Name)
			if _, err := ex.Exec(stmt); err != nil {
				return core.WrapError(core.KindInternal, err, "cannot drop index %q on store %q", oix.Name, old.Name)
			}
		}
	}
	return nil
}

func (e *Engine) createStoreTable(ex execer, st *schema.Store) error {
	q := e.dialect.Quote
	var cols []string
	pkCols := st.PrimaryColumns()
	if st.KeyPath.IsTuple() {
		for i, c := range pkCols {
			cols = append(cols, fmt.Sprintf("%s %s NOT NULL", q(c), schema.ColumnSQLType(componentType(st.KeyType(), i))))
		}
	} else {
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", q(pkCols[0]), keyColumnType(st.KeyType())))
	}
	for _, ix := range st.Indexes {
		for i, c := range st.IndexColumns(ix) {
			cols = append(cols, fmt.Sprintf("%s %s", q(c), schema.ColumnSQLType(componentType(ix.Type, i))))
		}
	}
	cols = append(cols, fmt.Sprintf("%s TEXT", q(schema.ValueColumn)))
	cols = append(cols, fmt.Sprintf("%s REAL", q(schema.ExpiresColumn)))
	if st.KeyPath.IsTuple() {
		quoted := make([]string, len(pkCols))
		for i, c := range pkCols {
			quoted[i] = q(c)
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", q(st.Name), strings.Join(cols, ", "))
	if _, err := ex.Exec(ddl); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot create table for store %q", st.Name)
	}
	for _, ix := range st.Indexes {
		ixCols := st.IndexColumns(ix)
		quoted := make([]string, len(ixCols))
		for i, c := range ixCols {
			quoted[i] = q(c)
		}
		unique := ""
		if ix.Unique {
			unique = "UNIQUE "
		}
		ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, q(st.Name+"_"+ix.Name), q(st.Name), strings.Join(quoted, ", "))
		if _, err := ex.Exec(ddl); err != nil {
			return core.WrapError(core.KindInternal, err, "cannot create index %q on store %q", ix.Name, st.Name)
		}
	}
	return nil
}

func keyColumnType(t key.Type) string {
	return schema.ColumnSQLType(t)
}

// componentType resolves the column type of one tuple component. Component
// types are not declared individually, so tuple columns stay TEXT unless
// the whole key is scalar.
func componentType(t key.Type, i int) key.Type {
	if t == key.TypeTuple {
		return key.TypeAny
	}
	return t
}

func (e *Engine) notifyDisconnected(err error) {
	e.mu.Lock()
	fns := append([]func(error){}, e.onDisc...)
	e.ready = false
	e.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
