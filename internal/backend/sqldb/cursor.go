package sqldb

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Cursor emulates a native indexed-database cursor over a materialized SQL
// result set. The result set is an immutable snapshot of the underlying
// query's rows at open time; the position moves over it, and update/delete
// write through to the table at the current primary key.
//
// States: pending (statement issued, not materialized) -> active
// (position < length) <-> exhausted (position >= length). Restart returns
// any state to pending.
type Cursor struct {
	tx    *Tx
	st    *schema.Store
	index *schema.Index // nil when iterating the primary key
	rng   key.Range
	dir   core.Direction

	rows    []cursorRow
	pos     int
	opened  bool
	invalid bool
}

type cursorRow struct {
	primary   key.Key
	effective key.Key
	raw       string
}

// OpenCursor materializes a cursor for the descriptor's store, index, range
// and direction. The descriptor's filters, map and reduce are applied by
// the caller, not here.
func (t *Tx) OpenCursor(d *query.Descriptor) (backend.Cursor, error) {
	st, err := t.check(d.Store, false)
	if err != nil {
		return nil, err
	}
	var ix *schema.Index
	if d.Index != "" {
		ix = st.Index(d.Index)
		if ix == nil {
			return nil, core.NewError(core.KindConstraint, "store %q has no index %q", d.Store, d.Index)
		}
	}
	dir := d.Direction
	if dir == "" {
		dir = core.DirNext
	}
	c := &Cursor{tx: t, st: st, index: ix, rng: d.Range, dir: dir}
	if err := c.materialize(); err != nil {
		return nil, err
	}
	t.cursors = append(t.cursors, c)
	return c, nil
}

func (c *Cursor) invalidate() { c.invalid = true }

func (c *Cursor) guard() error {
	if c.invalid || c.tx.done {
		return core.NewError(core.KindInvalidState, "cursor used outside its transaction")
	}
	return nil
}

// effectiveColumns returns the columns the cursor is ordered by.
func (c *Cursor) effectiveColumns() []string {
	if c.index == nil {
		return c.st.PrimaryColumns()
	}
	return c.st.IndexColumns(c.index)
}

// materialize issues the cursor statement and snapshots its rows. Unique
// directions collapse effective-key equivalence classes to their first row.
func (c *Cursor) materialize() error {
	q := c.tx.engine.dialect.Quote
	pkCols := c.st.PrimaryColumns()
	effCols := c.effectiveColumns()

	proj := make([]string, 0, len(pkCols)+len(effCols)+1)
	for _, col := range pkCols {
		proj = append(proj, q(col))
	}
	if c.index != nil {
		for _, col := range effCols {
			proj = append(proj, q(col))
		}
	}
	proj = append(proj, q(schema.ValueColumn))

	var where string
	var params []interface{}
	if !c.rng.Unbounded() {
		if c.index != nil && c.index.KeyPath.IsTuple() || c.index == nil && c.st.KeyPath.IsTuple() {
			where, params = c.rng.ToSQLTuple(effCols, q)
		} else {
			where, params = c.rng.ToSQL(effCols[0], q)
		}
	}

	dirSQL := " ASC"
	if c.dir.Reverse() {
		dirSQL = " DESC"
	}
	order := make([]string, 0, len(effCols)+len(pkCols))
	for _, col := range effCols {
		order = append(order, q(col)+dirSQL)
	}
	if c.index != nil {
		for _, col := range pkCols {
			order = append(order, q(col)+dirSQL)
		}
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(proj, ", "), q(c.st.Name))
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " ORDER BY " + strings.Join(order, ", ")

	rows, err := c.tx.tx.Query(stmt, params...)
	if err != nil {
		return core.WrapError(core.KindInternal, err, "cursor open failed: %s", stmt)
	}
	defer rows.Close()

	pkWidth := len(pkCols)
	effWidth := 0
	if c.index != nil {
		effWidth = len(effCols)
	}
	c.rows = c.rows[:0]
	c.pos = 0
	for rows.Next() {
		dest := scanSlots(pkWidth + effWidth + 1)
		if err := rows.Scan(dest...); err != nil {
			return core.WrapError(core.KindInternal, err, "cursor scan failed")
		}
		pk, err := keyFromSlots(dest[:pkWidth], c.st.KeyPath.IsTuple(), c.st.KeyType())
		if err != nil {
			return err
		}
		eff := pk
		if c.index != nil {
			eff, err = keyFromSlots(dest[pkWidth:pkWidth+effWidth], c.index.KeyPath.IsTuple(), c.index.Type)
			if err != nil {
				return err
			}
		}
		raw := ""
		if s, ok := (*dest[pkWidth+effWidth].(*interface{})).(string); ok {
			raw = s
		} else if b, ok := (*dest[pkWidth+effWidth].(*interface{})).([]byte); ok {
			raw = string(b)
		}
		if c.dir.Unique() && len(c.rows) > 0 && key.Equal(c.rows[len(c.rows)-1].effective, eff) {
			continue
		}
		c.rows = append(c.rows, cursorRow{primary: pk, effective: eff, raw: raw})
	}
	if err := rows.Err(); err != nil {
		return core.WrapError(core.KindInternal, err, "cursor materialization failed")
	}
	c.opened = true
	return nil
}

// HasCursor reports whether the position is active.
func (c *Cursor) HasCursor() bool {
	return c.opened && c.pos < len(c.rows)
}

// PrimaryKey returns the primary key at the position, or an undefined key.
func (c *Cursor) PrimaryKey() key.Key {
	if !c.HasCursor() {
		return key.Key{}
	}
	return c.rows[c.pos].primary
}

// EffectiveKey returns the key the cursor is ordered by.
func (c *Cursor) EffectiveKey() key.Key {
	if !c.HasCursor() {
		return key.Key{}
	}
	return c.rows[c.pos].effective
}

// Value decodes the record at the position; undefined when not active.
func (c *Cursor) Value() (core.Record, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if !c.HasCursor() {
		return nil, nil
	}
	return decodeRecord(c.rows[c.pos].raw)
}

// Advance moves the position forward by n. n must be at least 1.
func (c *Cursor) Advance(n int) error {
	if err := c.guard(); err != nil {
		return err
	}
	if n < 1 {
		return core.NewError(core.KindArgument, "advance requires a step of at least 1, got %d", n)
	}
	c.pos += n
	if c.pos > len(c.rows) {
		c.pos = len(c.rows)
	}
	return nil
}

// ahead reports whether k is strictly ahead of cur in the cursor's
// direction.
func (c *Cursor) ahead(k, cur key.Key) bool {
	cmp := key.Cmp(k, cur)
	if c.dir.Reverse() {
		return cmp < 0
	}
	return cmp > 0
}

// ContinueEffectiveKey advances until the effective key reaches or passes
// k. Seeking to a key behind the position is an InvalidOperationError.
func (c *Cursor) ContinueEffectiveKey(k key.Key) error {
	if err := c.guard(); err != nil {
		return err
	}
	if !c.opened {
		return core.NewError(core.KindInvalidOperation, "cursor is not positioned")
	}
	if !k.Defined() {
		c.pos++
		return nil
	}
	if c.HasCursor() && c.ahead(c.rows[c.pos].effective, k) {
		return core.NewError(core.KindInvalidOperation,
			"cannot continue to %s: behind the cursor position", k)
	}
	for c.pos < len(c.rows) && c.ahead(k, c.rows[c.pos].effective) {
		c.pos++
	}
	return nil
}

// ContinuePrimaryKey advances until the primary key reaches or passes k,
// stopping early if the effective key leaves the starting equivalence
// class. Primary-key continuation is defined only within one index-key
// class.
func (c *Cursor) ContinuePrimaryKey(k key.Key) error {
	if err := c.guard(); err != nil {
		return err
	}
	if !c.HasCursor() {
		return core.NewError(core.KindInvalidOperation, "cursor is not positioned")
	}
	start := c.rows[c.pos].effective
	if c.ahead(c.rows[c.pos].primary, k) {
		return core.NewError(core.KindInvalidOperation,
			"cannot continue to primary key %s: behind the cursor position", k)
	}
	for c.pos < len(c.rows) && c.ahead(k, c.rows[c.pos].primary) {
		if !key.Equal(c.rows[c.pos].effective, start) {
			// The equivalence class ended before k was reached; stop
			// without passing the changed index key.
			return nil
		}
		c.pos++
	}
	return nil
}

// Update rewrites the record at the current primary key and returns that
// key. The cursor keeps its position; the snapshot reflects the new value.
// Updating through an index cursor is not implemented.
func (c *Cursor) Update(rec core.Record) (key.Key, error) {
	if err := c.guard(); err != nil {
		return key.Key{}, err
	}
	if !c.HasCursor() {
		return key.Key{}, core.NewError(core.KindInvalidState, "update on an inactive cursor")
	}
	if c.index != nil {
		return key.Key{}, core.NewError(core.KindNotImplemented, "update through an index cursor")
	}
	if c.tx.mode == core.ModeReadOnly {
		return key.Key{}, core.NewError(core.KindInvalidState, "update in a readonly transaction")
	}
	pk := c.rows[c.pos].primary
	if _, err := c.tx.Put(c.st.Name, rec, pk); err != nil {
		return key.Key{}, err
	}
	raw, err := json.Marshal(rec)
	if err == nil {
		c.rows[c.pos].raw = string(raw)
	}
	return pk, nil
}

// Delete removes the record at the current primary key and returns the
// rows affected. The cursor keeps its position.
func (c *Cursor) Delete() (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	if !c.HasCursor() {
		return 0, core.NewError(core.KindInvalidState, "delete on an inactive cursor")
	}
	if c.tx.mode == core.ModeReadOnly {
		return 0, core.NewError(core.KindInvalidState, "delete in a readonly transaction")
	}
	pk := c.rows[c.pos].primary
	n, err := c.tx.Remove(c.st.Name, key.Only(pk))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Restart tightens the range's lower bound (in iteration order) to
// effectiveKey, re-issues the statement, and skips forward until
// primaryKey is reached; with exclusive set the resume position itself is
// passed.
func (c *Cursor) Restart(effectiveKey, primaryKey key.Key, exclusive bool) error {
	if err := c.guard(); err != nil {
		return err
	}
	if effectiveKey.Defined() {
		if c.dir.Reverse() {
			c.rng = c.rng.TightenUpper(effectiveKey, false)
		} else {
			c.rng = c.rng.TightenLower(effectiveKey, false)
		}
	}
	c.opened = false
	if err := c.materialize(); err != nil {
		return err
	}
	if !primaryKey.Defined() {
		return nil
	}
	for c.pos < len(c.rows) {
		cmp := key.Cmp(c.rows[c.pos].primary, primaryKey)
		if c.dir.Reverse() {
			cmp = -cmp
		}
		if cmp < 0 || (cmp == 0 && exclusive) {
			c.pos++
			continue
		}
		break
	}
	return nil
}

// Close drops the materialized rows.
func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	c.opened = false
	return nil
}

// coerceKey converts a scanned column value into a key of the declared
// type. Drivers hand back int64, float64, []byte, string, time.Time or
// bool depending on the column affinity.
func coerceKey(v interface{}, typ key.Type) (key.Key, error) {
	switch val := v.(type) {
	case nil:
		return key.Key{}, nil
	case int64:
		return key.Number(float64(val)), nil
	case float64:
		return key.Number(val), nil
	case time.Time:
		return key.Date(val), nil
	case []byte:
		return coerceText(string(val), typ)
	case string:
		return coerceText(val, typ)
	default:
		return key.FromValue(v)
	}
}

func coerceText(s string, typ key.Type) (key.Key, error) {
	if typ == key.TypeDate {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return key.Date(t), nil
		}
		if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
			return key.Date(t), nil
		}
	}
	return key.String(s), nil
}
