package sqldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// DoTransaction runs closure inside one SQL transaction. Transactions are
// serialized through the engine so the backend sees a single logical
// executor per connection.
func (e *Engine) DoTransaction(closure func(tx backend.Tx) error, stores []string, mode core.Mode, onComplete core.CompleteFunc) {
	e.txSerial.Lock()
	defer e.txSerial.Unlock()

	if onComplete == nil {
		onComplete = func(core.CompletionKind, error) {}
	}
	sqltx, err := e.db.Begin()
	if err != nil {
		wrapped := core.WrapError(core.KindInternal, err, "cannot begin transaction")
		e.notifyDisconnected(wrapped)
		onComplete(core.CompleteError, wrapped)
		return
	}
	tx := &Tx{engine: e, tx: sqltx, mode: mode, scope: stores}
	err = closure(tx)
	tx.done = true
	for _, c := range tx.cursors {
		c.invalidate()
	}
	if err != nil {
		sqltx.Rollback()
		onComplete(core.CompleteError, err)
		return
	}
	if err := sqltx.Commit(); err != nil {
		onComplete(core.CompleteError, core.WrapError(core.KindInternal, err, "commit failed"))
		return
	}
	onComplete(core.CompleteOK, nil)
}

// Tx implements backend.Tx and backend.SQLTx over one sql.Tx.
type Tx struct {
	engine  *Engine
	tx      *sql.Tx
	mode    core.Mode
	scope   []string
	done    bool
	cursors []*Cursor
}

func (t *Tx) check(store string, write bool) (*schema.Store, error) {
	if t.done {
		return nil, core.NewError(core.KindInvalidState, "transaction has completed")
	}
	if write && t.mode == core.ModeReadOnly {
		return nil, core.NewError(core.KindInvalidState, "write in a readonly transaction")
	}
	if store == "" {
		return nil, core.NewError(core.KindArgument, "store name is required")
	}
	st := t.engine.schema.Store(store)
	if st == nil {
		return nil, core.NewError(core.KindConstraint, "store %q is not in the schema", store)
	}
	if len(t.scope) > 0 && !contains(t.scope, store) {
		return nil, core.NewError(core.KindInvalidState, "store %q is outside the transaction scope", store)
	}
	return st, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// resolveKey settles the primary key for a write: the explicit key wins,
// then the in-record key, then generation (sequence for auto-increment
// stores, UUID for out-of-line stores).
func (t *Tx) resolveKey(st *schema.Store, rec core.Record, k key.Key) (key.Key, error) {
	if !k.Defined() {
		inRecord, err := st.ExtractKey(rec)
		if err != nil {
			return key.Key{}, err
		}
		k = inRecord
	}
	if !k.Defined() {
		switch {
		case st.AutoIncrement:
			next, err := t.nextSequence(st)
			if err != nil {
				return key.Key{}, err
			}
			k = next
		case st.OutOfLine():
			k = key.String(uuid.NewString())
		default:
			return key.Key{}, core.NewError(core.KindArgument, "record for store %q carries no key", st.Name)
		}
	}
	if err := k.CheckType(st.KeyType()); err != nil {
		return key.Key{}, err
	}
	return k, nil
}

func (t *Tx) nextSequence(st *schema.Store) (key.Key, error) {
	q := t.engine.dialect.Quote
	pk := st.PrimaryColumns()[0]
	row := t.tx.QueryRow(fmt.Sprintf("SELECT MAX(%s) FROM %s", q(pk), q(st.Name)))
	var max sql.NullFloat64
	if err := row.Scan(&max); err != nil {
		return key.Key{}, core.WrapError(core.KindInternal, err, "cannot advance key sequence for %q", st.Name)
	}
	return key.Number(max.Float64 + 1), nil
}

// rowValues assembles the column list and values for one record write.
func (t *Tx) rowValues(st *schema.Store, rec core.Record, k key.Key) ([]string, []interface{}, error) {
	st.InjectKey(rec, k)
	cols := st.PrimaryColumns()
	vals := keyParams(k, st.KeyPath.IsTuple())
	for _, ix := range st.Indexes {
		ik, err := st.ExtractIndexKey(ix, rec)
		if err != nil {
			return nil, nil, err
		}
		ixCols := st.IndexColumns(ix)
		cols = append(cols, ixCols...)
		vals = append(vals, indexParams(ik, ix.KeyPath.IsTuple(), len(ixCols))...)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, core.WrapError(core.KindArgument, err, "record is not serializable")
	}
	cols = append(cols, schema.ValueColumn)
	vals = append(vals, string(raw))
	if exp, ok := rec[schema.ExpiresColumn]; ok {
		cols = append(cols, schema.ExpiresColumn)
		vals = append(vals, exp)
	}
	return cols, vals, nil
}

func keyParams(k key.Key, tuple bool) []interface{} {
	if !tuple {
		return []interface{}{k.SQLValue()}
	}
	parts := k.Components()
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p.SQLValue()
	}
	return out
}

func indexParams(k key.Key, tuple bool, width int) []interface{} {
	if !tuple {
		if !k.Defined() {
			return []interface{}{nil}
		}
		return []interface{}{k.SQLValue()}
	}
	out := make([]interface{}, width)
	if k.Defined() {
		for i, p := range k.Components() {
			if i < width {
				out[i] = p.SQLValue()
			}
		}
	}
	return out
}

// Put upserts a record and returns its primary key.
func (t *Tx) Put(store string, rec core.Record, k key.Key) (key.Key, error) {
	st, err := t.check(store, true)
	if err != nil {
		return key.Key{}, err
	}
	k, err = t.resolveKey(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	cols, vals, err := t.rowValues(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	q := t.engine.dialect.Quote
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q(c)
	}
	stmt := fmt.Sprintf("%s %s (%s) VALUES (%s)",
		t.engine.dialect.ReplaceVerb(), q(store),
		strings.Join(quoted, ", "), placeholders(len(vals)))
	if _, err := t.tx.Exec(stmt, vals...); err != nil {
		return key.Key{}, core.WrapError(core.KindInternal, err, "put into %q failed", store)
	}
	return k, nil
}

// Add inserts a record, failing with ConstraintError when the key exists.
func (t *Tx) Add(store string, rec core.Record, k key.Key) (key.Key, error) {
	st, err := t.check(store, true)
	if err != nil {
		return key.Key{}, err
	}
	k, err = t.resolveKey(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	existing, err := t.getByKey(st, k)
	if err != nil {
		return key.Key{}, err
	}
	if existing != nil {
		return key.Key{}, core.NewError(core.KindConstraint, "key %s already exists in store %q", k, store)
	}
	cols, vals, err := t.rowValues(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	q := t.engine.dialect.Quote
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q(store), strings.Join(quoted, ", "), placeholders(len(vals)))
	if _, err := t.tx.Exec(stmt, vals...); err != nil {
		return key.Key{}, core.WrapError(core.KindConstraint, err, "add into %q failed", store)
	}
	return k, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// pkWhere builds the primary-key equality fragment.
func (t *Tx) pkWhere(st *schema.Store, k key.Key) (string, []interface{}) {
	q := t.engine.dialect.Quote
	cols := st.PrimaryColumns()
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = q(c) + " = ?"
	}
	return strings.Join(conds, " AND "), keyParams(k, st.KeyPath.IsTuple())
}

func (t *Tx) getByKey(st *schema.Store, k key.Key) (core.Record, error) {
	q := t.engine.dialect.Quote
	where, params := t.pkWhere(st, k)
	row := t.tx.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		q(schema.ValueColumn), q(st.Name), where), params...)
	var raw string
	switch err := row.Scan(&raw); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, core.WrapError(core.KindInternal, err, "get from %q failed", st.Name)
	}
	return decodeRecord(raw)
}

func decodeRecord(raw string) (core.Record, error) {
	var rec core.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, core.WrapError(core.KindInternal, err, "stored record is corrupt")
	}
	return rec, nil
}

// Get returns the record under k, or nil when absent.
func (t *Tx) Get(store string, k key.Key) (core.Record, error) {
	st, err := t.check(store, false)
	if err != nil {
		return nil, err
	}
	if !k.Defined() {
		return nil, core.NewError(core.KindArgument, "key is required")
	}
	return t.getByKey(st, k)
}

// rangeWhere projects a primary-key range onto the table columns.
func rangeWhere(st *schema.Store, rng key.Range, quote key.QuoteFunc) (string, []interface{}) {
	if rng.Unbounded() {
		return "", nil
	}
	if st.KeyPath.IsTuple() {
		return rng.ToSQLTuple(st.PrimaryColumns(), quote)
	}
	return rng.ToSQL(st.PrimaryColumns()[0], quote)
}

// List returns records with primary keys in rng, in key order.
func (t *Tx) List(store string, rng key.Range) ([]core.Record, error) {
	st, err := t.check(store, false)
	if err != nil {
		return nil, err
	}
	q := t.engine.dialect.Quote
	where, params := rangeWhere(st, rng, q)
	stmt := fmt.Sprintf("SELECT %s FROM %s", q(schema.ValueColumn), q(store))
	if where != "" {
		stmt += " WHERE " + where
	}
	order := make([]string, 0, 2)
	for _, c := range st.PrimaryColumns() {
		order = append(order, q(c)+" ASC")
	}
	stmt += " ORDER BY " + strings.Join(order, ", ")
	rows, err := t.tx.Query(stmt, params...)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, err, "list from %q failed", store)
	}
	defer rows.Close()
	var out []core.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, core.WrapError(core.KindInternal, err, "list scan failed")
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns how many primary keys fall in rng.
func (t *Tx) Count(store string, rng key.Range) (int, error) {
	st, err := t.check(store, false)
	if err != nil {
		return 0, err
	}
	q := t.engine.dialect.Quote
	where, params := rangeWhere(st, rng, q)
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", q(store))
	if where != "" {
		stmt += " WHERE " + where
	}
	var n int
	if err := t.tx.QueryRow(stmt, params...).Scan(&n); err != nil {
		return 0, core.WrapError(core.KindInternal, err, "count on %q failed", store)
	}
	return n, nil
}

// Clear removes every record of the store.
func (t *Tx) Clear(store string) error {
	st, err := t.check(store, true)
	if err != nil {
		return err
	}
	q := t.engine.dialect.Quote
	if _, err := t.tx.Exec(fmt.Sprintf("DELETE FROM %s", q(st.Name))); err != nil {
		return core.WrapError(core.KindInternal, err, "clear of %q failed", store)
	}
	return nil
}

// Remove deletes primary keys in rng and returns the count removed.
func (t *Tx) Remove(store string, rng key.Range) (int, error) {
	st, err := t.check(store, true)
	if err != nil {
		return 0, err
	}
	q := t.engine.dialect.Quote
	where, params := rangeWhere(st, rng, q)
	stmt := fmt.Sprintf("DELETE FROM %s", q(store))
	if where != "" {
		stmt += " WHERE " + where
	}
	res, err := t.tx.Exec(stmt, params...)
	if err != nil {
		return 0, core.WrapError(core.KindInternal, err, "remove from %q failed", store)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CreateStore materializes a new store table. Versionchange only.
func (t *Tx) CreateStore(st *schema.Store) error {
	if t.done {
		return core.NewError(core.KindInvalidState, "transaction has completed")
	}
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	return t.engine.createStoreTable(t.tx, st)
}

// DropStore removes a store table. Versionchange only.
func (t *Tx) DropStore(name string) error {
	if t.done {
		return core.NewError(core.KindInvalidState, "transaction has completed")
	}
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	q := t.engine.dialect.Quote
	if _, err := t.tx.Exec("DROP TABLE IF EXISTS " + q(name)); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot drop store %q", name)
	}
	return nil
}

// QueryPlan executes a compiled SQL plan and materializes its result.
func (t *Tx) QueryPlan(plan *query.SQLPlan) (*backend.SQLResult, error) {
	st, err := t.check(plan.Store, false)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(plan.SQL, plan.Params...)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, err, "query failed: %s", plan.SQL)
	}
	defer rows.Close()

	res := &backend.SQLResult{}
	if plan.Finalize == query.FinalizeTakeFirst {
		if rows.Next() {
			var first interface{}
			if err := rows.Scan(&first); err != nil {
				return nil, core.WrapError(core.KindInternal, err, "aggregate scan failed")
			}
			res.First = normalizeScalar(first)
		}
		return res, rows.Err()
	}
	if plan.KeyProjection {
		ix := st.Index(plan.Index)
		width := 1
		tuple := false
		if ix != nil {
			width = len(st.IndexColumns(ix))
			tuple = ix.KeyPath.IsTuple()
		}
		typ := key.TypeAny
		if ix != nil {
			typ = ix.Type
		}
		for rows.Next() {
			dest := scanSlots(width)
			if err := rows.Scan(dest...); err != nil {
				return nil, core.WrapError(core.KindInternal, err, "key scan failed")
			}
			k, err := keyFromSlots(dest, tuple, typ)
			if err != nil {
				return nil, err
			}
			res.Keys = append(res.Keys, k)
		}
		return res, rows.Err()
	}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, core.WrapError(core.KindInternal, err, "row scan failed")
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, rec)
	}
	return res, rows.Err()
}

func scanSlots(n int) []interface{} {
	dest := make([]interface{}, n)
	for i := range dest {
		dest[i] = new(interface{})
	}
	return dest
}

func keyFromSlots(dest []interface{}, tuple bool, typ key.Type) (key.Key, error) {
	if !tuple {
		return coerceKey(*dest[0].(*interface{}), typ)
	}
	parts := make([]key.Key, len(dest))
	for i, d := range dest {
		p, err := coerceKey(*d.(*interface{}), key.TypeAny)
		if err != nil {
			return key.Key{}, err
		}
		parts[i] = p
	}
	return key.Tuple(parts...), nil
}

// normalizeScalar converts driver-specific scalar types into the canonical
// ones the pipeline compares against.
func normalizeScalar(v interface{}) interface{} {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case int64:
		return float64(s)
	}
	return v
}
