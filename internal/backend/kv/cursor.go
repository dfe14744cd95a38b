package kv

import (
	"sort"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Cursor is a materialized iterator over a snapshot of one store. Flat
// key-value services keep no secondary structures, so index order is
// recovered by evaluating the index key path per record and sorting the
// snapshot.
type Cursor struct {
	tx    *Tx
	st    *schema.Store
	index *schema.Index
	rng   key.Range
	dir   core.Direction

	rows    []kvRow
	pos     int
	opened  bool
	invalid bool
}

type kvRow struct {
	primary   key.Key
	effective key.Key
	rec       core.Record
}

// OpenCursor materializes a cursor per the descriptor.
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

func (c *Cursor) guard() error {
	if c.invalid || c.tx.done {
		return core.NewError(core.KindInvalidState, "cursor used outside its transaction")
	}
	return nil
}

func (c *Cursor) materialize() error {
	keys, recs, err := c.tx.scanRange(c.st.Name, key.Range{})
	if err != nil {
		return err
	}
	c.rows = c.rows[:0]
	c.pos = 0
	for i, pk := range keys {
		eff := pk
		if c.index != nil {
			eff, err = c.st.ExtractIndexKey(c.index, recs[i])
			if err != nil || !eff.Defined() {
				// Records without the indexed field are invisible to
				// the index.
				continue
			}
		}
		if !c.rng.Contains(eff) {
			continue
		}
		c.rows = append(c.rows, kvRow{primary: pk, effective: eff, rec: recs[i]})
	}
	sort.SliceStable(c.rows, func(i, j int) bool {
		cmp := key.Cmp(c.rows[i].effective, c.rows[j].effective)
		if cmp == 0 {
			cmp = key.Cmp(c.rows[i].primary, c.rows[j].primary)
		}
		if c.dir.Reverse() {
			return cmp > 0
		}
		return cmp < 0
	})
	if c.dir.Unique() {
		dedup := c.rows[:0]
		for _, r := range c.rows {
			if len(dedup) > 0 && key.Equal(dedup[len(dedup)-1].effective, r.effective) {
				continue
			}
			dedup = append(dedup, r)
		}
		c.rows = dedup
	}
	c.opened = true
	return nil
}

// HasCursor reports whether the position is active.
func (c *Cursor) HasCursor() bool {
	return c.opened && c.pos < len(c.rows)
}

// PrimaryKey returns the primary key at the position.
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

// Value returns the record at the position.
func (c *Cursor) Value() (core.Record, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if !c.HasCursor() {
		return nil, nil
	}
	return c.rows[c.pos].rec, nil
}

// Advance moves forward by n (n >= 1).
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

func (c *Cursor) ahead(k, cur key.Key) bool {
	cmp := key.Cmp(k, cur)
	if c.dir.Reverse() {
		return cmp < 0
	}
	return cmp > 0
}

// ContinueEffectiveKey advances until the effective key reaches or passes k.
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

// ContinuePrimaryKey advances until the primary key reaches or passes k, or
// stops on the first row whose effective key differs from the starting one.
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
			return nil
		}
		c.pos++
	}
	return nil
}

// Update rewrites the record at the current primary key.
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
	pk := c.rows[c.pos].primary
	if _, err := c.tx.Put(c.st.Name, rec, pk); err != nil {
		return key.Key{}, err
	}
	c.rows[c.pos].rec = rec
	return pk, nil
}

// Delete removes the record at the current primary key.
func (c *Cursor) Delete() (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	if !c.HasCursor() {
		return 0, core.NewError(core.KindInvalidState, "delete on an inactive cursor")
	}
	return c.tx.Remove(c.st.Name, key.Only(c.rows[c.pos].primary))
}

// Restart re-materializes with the lower bound (in iteration order)
// tightened to effectiveKey, then skips to primaryKey.
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

// Close drops the snapshot.
func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	c.opened = false
	return nil
}
