package bolt

import (
	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Cursor iterates one store or index in B-tree order. The matched key
// positions are snapshotted at open; record values are fetched lazily from
// the store bucket, which stays valid for the life of the transaction.
type Cursor struct {
	tx    *Tx
	st    *schema.Store
	index *schema.Index
	rng   key.Range
	dir   core.Direction

	rows    []boltRow
	pos     int
	opened  bool
	invalid bool
}

type boltRow struct {
	primary   key.Key
	effective key.Key
}

// OpenCursor positions a cursor per the descriptor.
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

// materialize walks the underlying bucket in its native order and snapshots
// the (primary, effective) pairs inside the range. Reverse directions flip
// the snapshot order; unique directions keep the first row per class.
func (c *Cursor) materialize() error {
	c.rows = c.rows[:0]
	c.pos = 0
	var err error
	if c.index == nil {
		err = c.tx.walkRange(c.st, c.rng, func(pk key.Key, _ []byte) error {
			c.rows = append(c.rows, boltRow{primary: pk, effective: pk})
			return nil
		})
	} else {
		err = c.walkIndex()
	}
	if err != nil {
		return err
	}
	if c.dir.Reverse() {
		for i, j := 0, len(c.rows)-1; i < j; i, j = i+1, j-1 {
			c.rows[i], c.rows[j] = c.rows[j], c.rows[i]
		}
	}
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

func (c *Cursor) walkIndex() error {
	bkt := c.tx.indexEntries(c.st, c.index)
	if bkt == nil {
		return core.NewError(core.KindInternal, "bucket for index %q is missing", c.index.Name)
	}
	cur := bkt.Cursor()
	var kb []byte
	if c.rng.Lower != nil {
		kb, _ = cur.Seek(entryPrefix(*c.rng.Lower))
	} else {
		kb, _ = cur.First()
	}
	for ; kb != nil; kb, _ = cur.Next() {
		entry, _, err := key.Decode(kb)
		if err != nil {
			return err
		}
		parts := entry.Components()
		if len(parts) != 2 {
			return core.NewError(core.KindInternal, "malformed index entry in %q", c.index.Name)
		}
		ik, pk := parts[0], parts[1]
		if c.rng.Lower != nil {
			cmp := key.Cmp(ik, *c.rng.Lower)
			if cmp < 0 || (cmp == 0 && c.rng.LowerOpen) {
				continue
			}
		}
		if c.rng.Upper != nil {
			cmp := key.Cmp(ik, *c.rng.Upper)
			if cmp > 0 || (cmp == 0 && c.rng.UpperOpen) {
				return nil
			}
		}
		c.rows = append(c.rows, boltRow{primary: pk, effective: ik})
	}
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

// Value fetches the record at the position from the store bucket.
func (c *Cursor) Value() (core.Record, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if !c.HasCursor() {
		return nil, nil
	}
	b, err := c.tx.records(c.st)
	if err != nil {
		return nil, err
	}
	raw := b.Get(c.rows[c.pos].primary.Encode())
	if raw == nil {
		return nil, nil
	}
	return decodeRecord(raw)
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

func (c *Cursor) aheadOf(k, cur key.Key) bool {
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
	if c.HasCursor() && c.aheadOf(c.rows[c.pos].effective, k) {
		return core.NewError(core.KindInvalidOperation,
			"cannot continue to %s: behind the cursor position", k)
	}
	for c.pos < len(c.rows) && c.aheadOf(k, c.rows[c.pos].effective) {
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
	if c.aheadOf(c.rows[c.pos].primary, k) {
		return core.NewError(core.KindInvalidOperation,
			"cannot continue to primary key %s: behind the cursor position", k)
	}
	for c.pos < len(c.rows) && c.aheadOf(k, c.rows[c.pos].primary) {
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
	return c.tx.Put(c.st.Name, rec, pk)
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

// Restart re-walks with the lower bound (in iteration order) tightened to
// effectiveKey, then skips to primaryKey.
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
