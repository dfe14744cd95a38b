package unistore

import (
	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/query"
)

// Cursor is the positioned iterator handed to Open callbacks. It is valid
// only for the duration of the callback's transaction.
type Cursor struct {
	inner backend.Cursor
}

// HasCursor reports whether the cursor is on a row.
func (c *Cursor) HasCursor() bool { return c.inner.HasCursor() }

// PrimaryKey returns the primary key at the position, or nil.
func (c *Cursor) PrimaryKey() interface{} { return c.inner.PrimaryKey().Value() }

// IndexKey returns the effective key at the position, or nil.
func (c *Cursor) IndexKey() interface{} { return c.inner.EffectiveKey().Value() }

// Value returns the record at the position.
func (c *Cursor) Value() (Record, error) { return c.inner.Value() }

// Advance moves forward by n rows (n >= 1).
func (c *Cursor) Advance(n int) error { return c.inner.Advance(n) }

// ContinueTo advances until the effective key reaches or passes k.
func (c *Cursor) ContinueTo(k interface{}) error {
	ik, err := key.FromValue(k)
	if err != nil {
		return err
	}
	return c.inner.ContinueEffectiveKey(ik)
}

// ContinueToPrimary advances until the primary key reaches or passes k, or
// stops on the first row whose effective key differs from the starting one.
func (c *Cursor) ContinueToPrimary(k interface{}) error {
	pk, err := key.FromValue(k)
	if err != nil {
		return err
	}
	return c.inner.ContinuePrimaryKey(pk)
}

// Update rewrites the record at the current primary key.
func (c *Cursor) Update(rec Record) (interface{}, error) {
	pk, err := c.inner.Update(rec)
	if err != nil {
		return nil, err
	}
	return pk.Value(), nil
}

// Delete removes the record at the current primary key and returns the
// rows affected.
func (c *Cursor) Delete() (int, error) { return c.inner.Delete() }

// Open iterates a cursor over the iteration's range and calls fn at every
// position. fn may move the cursor itself; when it does not, Open advances
// by one. A non-nil error from fn aborts the transaction. mode defaults to
// readonly; pass ReadWrite to update or delete through the cursor.
func (s *Storage) Open(it *Iter, fn func(c *Cursor) error, mode ...Mode) *Request {
	m := core.ModeReadOnly
	if len(mode) > 0 {
		m = mode[0]
	}
	ir := it.ir
	db := s.schemaDB()
	return s.withTx([]string{ir.Store}, m, func(tx backend.Tx) (interface{}, error) {
		desc, err := query.CompileNative(&ir, db)
		if err != nil {
			return nil, err
		}
		cur, err := tx.OpenCursor(desc)
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		wrapped := &Cursor{inner: cur}
		visited := 0
		for cur.HasCursor() {
			if len(desc.Filters) > 0 {
				rec, err := cur.Value()
				if err != nil {
					return nil, err
				}
				if !matchFilters(rec, desc.Filters) {
					if err := cur.Advance(1); err != nil {
						return nil, err
					}
					continue
				}
			}
			before := cur.PrimaryKey()
			if err := fn(wrapped); err != nil {
				return nil, err
			}
			visited++
			if desc.Limit > 0 && visited >= desc.Limit {
				break
			}
			// Advance only if the callback left the cursor in place.
			if cur.HasCursor() && key.Equal(cur.PrimaryKey(), before) {
				if err := cur.Advance(1); err != nil {
					return nil, err
				}
			}
		}
		return visited, nil
	}, nil)
}

// Map applies fn to every record of the iteration and resolves with the
// results in iteration order.
func (s *Storage) Map(it *Iter, fn func(rec Record) interface{}) *Request {
	ir := it.ir
	db := s.schemaDB()
	return s.withTx([]string{ir.Store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		desc, err := query.CompileNative(&ir, db)
		if err != nil {
			return nil, err
		}
		cur, err := tx.OpenCursor(desc)
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		var out []interface{}
		for cur.HasCursor() {
			rec, err := cur.Value()
			if err != nil {
				return nil, err
			}
			if matchFilters(rec, desc.Filters) {
				out = append(out, fn(rec))
			}
			if err := cur.Advance(1); err != nil {
				return nil, err
			}
		}
		return out, nil
	}, nil)
}

// Reduce folds fn over the iteration's records, starting from init, and
// resolves with the final accumulator.
func (s *Storage) Reduce(it *Iter, fn func(prev interface{}, rec Record, i int) interface{}, init interface{}) *Request {
	ir := it.ir
	db := s.schemaDB()
	return s.withTx([]string{ir.Store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		desc, err := query.CompileNative(&ir, db)
		if err != nil {
			return nil, err
		}
		cur, err := tx.OpenCursor(desc)
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		acc := init
		i := 0
		for cur.HasCursor() {
			rec, err := cur.Value()
			if err != nil {
				return nil, err
			}
			if matchFilters(rec, desc.Filters) {
				acc = fn(acc, rec, i)
				i++
			}
			if err := cur.Advance(1); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}, nil)
}

// Solver drives a Scan: it receives the current effective keys of every
// streamer (nil when exhausted) and returns which cursors to advance, or
// nil to stop.
type Solver func(keys []interface{}) []bool

// Scan opens one cursor per iteration inside a single transaction and
// steps them under the solver's control. Resolves with the number of
// solver rounds.
func (s *Storage) Scan(iters []*Iter, solve Solver) *Request {
	if len(iters) == 0 {
		return core.Rejected(core.NewError(core.KindArgument, "scan requires at least one iterator"))
	}
	stores := make([]string, 0, len(iters))
	for _, it := range iters {
		stores = append(stores, it.ir.Store)
	}
	db := s.schemaDB()
	return s.withTx(stores, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		cursors := make([]backend.Cursor, len(iters))
		for i, it := range iters {
			ir := it.ir
			desc, err := query.CompileNative(&ir, db)
			if err != nil {
				return nil, err
			}
			cur, err := tx.OpenCursor(desc)
			if err != nil {
				return nil, err
			}
			defer cur.Close()
			cursors[i] = cur
		}
		rounds := 0
		for {
			keys := make([]interface{}, len(cursors))
			exhausted := true
			for i, cur := range cursors {
				if cur.HasCursor() {
					keys[i] = cur.EffectiveKey().Value()
					exhausted = false
				}
			}
			if exhausted {
				return rounds, nil
			}
			advance := solve(keys)
			if advance == nil {
				return rounds, nil
			}
			rounds++
			for i, doAdvance := range advance {
				if i < len(cursors) && doAdvance && cursors[i].HasCursor() {
					if err := cursors[i].Advance(1); err != nil {
						return nil, err
					}
				}
			}
		}
	}, nil)
}
