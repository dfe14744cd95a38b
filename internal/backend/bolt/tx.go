package bolt

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// Tx implements backend.Tx over one bbolt transaction.
type Tx struct {
	driver  *Driver
	btx     *bbolt.Tx
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
	st := t.driver.schema.Store(store)
	if st == nil {
		return nil, core.NewError(core.KindConstraint, "store %q is not in the schema", store)
	}
	if len(t.scope) > 0 && !containsName(t.scope, store) {
		return nil, core.NewError(core.KindInvalidState, "store %q is outside the transaction scope", store)
	}
	return st, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (t *Tx) records(st *schema.Store) (*bbolt.Bucket, error) {
	b := t.btx.Bucket(storeBucket(st.Name))
	if b == nil {
		return nil, core.NewError(core.KindInternal, "bucket for store %q is missing", st.Name)
	}
	return b, nil
}

func (t *Tx) indexEntries(st *schema.Store, ix *schema.Index) *bbolt.Bucket {
	return t.btx.Bucket(indexBucket(st.Name, ix.Name))
}

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
			b, err := t.records(st)
			if err != nil {
				return key.Key{}, err
			}
			k = nextSequence(b)
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

// nextSequence derives the next numeric key from the largest stored one.
// Number encodings sort before every other key type, so walking backwards
// the first numeric key met is the greatest.
func nextSequence(b *bbolt.Bucket) key.Key {
	max := 0.0
	c := b.Cursor()
	for kb, _ := c.Last(); kb != nil; kb, _ = c.Prev() {
		k, _, err := key.Decode(kb)
		if err == nil && k.IsNumber() {
			if k.Number() > max {
				max = k.Number()
			}
			break
		}
	}
	return key.Number(max + 1)
}

// indexKeys lists the index entry keys one record contributes: one entry
// normally, one per element for multiEntry indexes over array values.
func indexKeys(st *schema.Store, ix *schema.Index, rec core.Record) ([]key.Key, error) {
	if ix.MultiEntry {
		if raw, ok := ix.KeyPath.Resolve(rec); ok {
			if arr, ok := raw.([]interface{}); ok {
				keys := make([]key.Key, 0, len(arr))
				for _, elem := range arr {
					k, err := key.FromValue(elem)
					if err != nil {
						return nil, err
					}
					keys = append(keys, k)
				}
				return keys, nil
			}
		}
	}
	ik, err := st.ExtractIndexKey(ix, rec)
	if err != nil {
		return nil, err
	}
	if !ik.Defined() {
		return nil, nil
	}
	return []key.Key{ik}, nil
}

// entryKey is the index-bucket key for one (index key, primary key) pair.
func entryKey(ik, pk key.Key) []byte {
	return key.Tuple(ik, pk).Encode()
}

// entryPrefix is the index-bucket prefix shared by every entry of one
// index-key equivalence class.
func entryPrefix(ik key.Key) []byte {
	full := key.Tuple(ik).Encode()
	// Strip the closing tuple terminator so longer entries still match.
	return full[:len(full)-1]
}

func (t *Tx) putIndexEntries(st *schema.Store, rec core.Record, pk key.Key, old core.Record) error {
	for _, ix := range st.Indexes {
		bkt := t.indexEntries(st, ix)
		if bkt == nil {
			continue
		}
		if old != nil {
			oldKeys, err := indexKeys(st, ix, old)
			if err == nil {
				for _, ik := range oldKeys {
					bkt.Delete(entryKey(ik, pk))
				}
			}
		}
		newKeys, err := indexKeys(st, ix, rec)
		if err != nil {
			return err
		}
		for _, ik := range newKeys {
			if ix.Unique {
				if err := t.checkUnique(bkt, ik, pk); err != nil {
					return err
				}
			}
			if err := bkt.Put(entryKey(ik, pk), pk.Encode()); err != nil {
				return core.WrapError(core.KindInternal, err, "cannot write index %q of %q", ix.Name, st.Name)
			}
		}
	}
	return nil
}

func (t *Tx) checkUnique(bkt *bbolt.Bucket, ik, pk key.Key) error {
	prefix := entryPrefix(ik)
	c := bkt.Cursor()
	for kb, vb := c.Seek(prefix); kb != nil && bytes.HasPrefix(kb, prefix); kb, vb = c.Next() {
		if !bytes.Equal(vb, pk.Encode()) {
			return core.NewError(core.KindConstraint, "unique index violation on key %s", ik)
		}
	}
	return nil
}

func (t *Tx) dropIndexEntries(st *schema.Store, rec core.Record, pk key.Key) {
	for _, ix := range st.Indexes {
		bkt := t.indexEntries(st, ix)
		if bkt == nil {
			continue
		}
		keys, err := indexKeys(st, ix, rec)
		if err != nil {
			continue
		}
		for _, ik := range keys {
			bkt.Delete(entryKey(ik, pk))
		}
	}
}

func (t *Tx) write(st *schema.Store, rec core.Record, k key.Key, insertOnly bool) (key.Key, error) {
	b, err := t.records(st)
	if err != nil {
		return key.Key{}, err
	}
	old := b.Get(k.Encode())
	if insertOnly && old != nil {
		return key.Key{}, core.NewError(core.KindConstraint, "key %s already exists in store %q", k, st.Name)
	}
	var oldRec core.Record
	if old != nil {
		oldRec, _ = decodeRecord(old)
	}
	st.InjectKey(rec, k)
	raw, err := json.Marshal(rec)
	if err != nil {
		return key.Key{}, core.WrapError(core.KindArgument, err, "record is not serializable")
	}
	if err := t.putIndexEntries(st, rec, k, oldRec); err != nil {
		return key.Key{}, err
	}
	if err := b.Put(k.Encode(), raw); err != nil {
		return key.Key{}, core.WrapError(core.KindInternal, err, "put into %q failed", st.Name)
	}
	return k, nil
}

// Put upserts a record.
func (t *Tx) Put(store string, rec core.Record, k key.Key) (key.Key, error) {
	st, err := t.check(store, true)
	if err != nil {
		return key.Key{}, err
	}
	k, err = t.resolveKey(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	return t.write(st, rec, k, false)
}

// Add inserts, failing with ConstraintError when the key exists.
func (t *Tx) Add(store string, rec core.Record, k key.Key) (key.Key, error) {
	st, err := t.check(store, true)
	if err != nil {
		return key.Key{}, err
	}
	k, err = t.resolveKey(st, rec, k)
	if err != nil {
		return key.Key{}, err
	}
	return t.write(st, rec, k, true)
}

func decodeRecord(raw []byte) (core.Record, error) {
	var rec core.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, core.WrapError(core.KindInternal, err, "stored record is corrupt")
	}
	return rec, nil
}

// Get returns the record under k, or nil.
func (t *Tx) Get(store string, k key.Key) (core.Record, error) {
	st, err := t.check(store, false)
	if err != nil {
		return nil, err
	}
	if !k.Defined() {
		return nil, core.NewError(core.KindArgument, "key is required")
	}
	b, err := t.records(st)
	if err != nil {
		return nil, err
	}
	raw := b.Get(k.Encode())
	if raw == nil {
		return nil, nil
	}
	return decodeRecord(raw)
}

// walkRange visits records with primary keys in rng, in B-tree order.
func (t *Tx) walkRange(st *schema.Store, rng key.Range, visit func(pk key.Key, raw []byte) error) error {
	b, err := t.records(st)
	if err != nil {
		return err
	}
	c := b.Cursor()
	var kb, vb []byte
	if rng.Lower != nil {
		kb, vb = c.Seek(rng.Lower.Encode())
	} else {
		kb, vb = c.First()
	}
	for ; kb != nil; kb, vb = c.Next() {
		pk, _, err := key.Decode(kb)
		if err != nil {
			return err
		}
		if rng.Lower != nil {
			cmp := key.Cmp(pk, *rng.Lower)
			if cmp < 0 || (cmp == 0 && rng.LowerOpen) {
				continue
			}
		}
		if rng.Upper != nil {
			cmp := key.Cmp(pk, *rng.Upper)
			if cmp > 0 || (cmp == 0 && rng.UpperOpen) {
				return nil
			}
		}
		if err := visit(pk, vb); err != nil {
			return err
		}
	}
	return nil
}

// List returns records with primary keys in rng, in key order.
func (t *Tx) List(store string, rng key.Range) ([]core.Record, error) {
	st, err := t.check(store, false)
	if err != nil {
		return nil, err
	}
	var out []core.Record
	err = t.walkRange(st, rng, func(_ key.Key, raw []byte) error {
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Count returns how many primary keys fall in rng.
func (t *Tx) Count(store string, rng key.Range) (int, error) {
	st, err := t.check(store, false)
	if err != nil {
		return 0, err
	}
	n := 0
	err = t.walkRange(st, rng, func(key.Key, []byte) error {
		n++
		return nil
	})
	return n, err
}

// Clear removes every record and index entry of the store.
func (t *Tx) Clear(store string) error {
	st, err := t.check(store, true)
	if err != nil {
		return err
	}
	if err := t.btx.DeleteBucket(storeBucket(st.Name)); err != nil && err != bbolt.ErrBucketNotFound {
		return core.WrapError(core.KindInternal, err, "clear of %q failed", store)
	}
	if _, err := t.btx.CreateBucket(storeBucket(st.Name)); err != nil {
		return core.WrapError(core.KindInternal, err, "clear of %q failed", store)
	}
	for _, ix := range st.Indexes {
		if err := t.btx.DeleteBucket(indexBucket(st.Name, ix.Name)); err != nil && err != bbolt.ErrBucketNotFound {
			return core.WrapError(core.KindInternal, err, "clear of index %q failed", ix.Name)
		}
		if _, err := t.btx.CreateBucket(indexBucket(st.Name, ix.Name)); err != nil {
			return core.WrapError(core.KindInternal, err, "clear of index %q failed", ix.Name)
		}
	}
	return nil
}

// Remove deletes primary keys in rng and returns the count removed.
func (t *Tx) Remove(store string, rng key.Range) (int, error) {
	st, err := t.check(store, true)
	if err != nil {
		return 0, err
	}
	type victim struct {
		pk  key.Key
		rec core.Record
	}
	var victims []victim
	err = t.walkRange(st, rng, func(pk key.Key, raw []byte) error {
		rec, _ := decodeRecord(raw)
		victims = append(victims, victim{pk: pk, rec: rec})
		return nil
	})
	if err != nil {
		return 0, err
	}
	b, err := t.records(st)
	if err != nil {
		return 0, err
	}
	for _, v := range victims {
		if v.rec != nil {
			t.dropIndexEntries(st, v.rec, v.pk)
		}
		if err := b.Delete(v.pk.Encode()); err != nil {
			return 0, core.WrapError(core.KindInternal, err, "remove from %q failed", store)
		}
	}
	return len(victims), nil
}

// CreateStore materializes buckets for a new store. Versionchange only.
func (t *Tx) CreateStore(st *schema.Store) error {
	if t.done {
		return core.NewError(core.KindInvalidState, "transaction has completed")
	}
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	return createStoreBuckets(t.btx, st)
}

// DropStore removes a store's buckets. Versionchange only.
func (t *Tx) DropStore(name string) error {
	if t.done {
		return core.NewError(core.KindInvalidState, "transaction has completed")
	}
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	if err := t.btx.DeleteBucket(storeBucket(name)); err != nil && err != bbolt.ErrBucketNotFound {
		return core.WrapError(core.KindInternal, err, "cannot drop store %q", name)
	}
	if st := t.driver.schema.Store(name); st != nil {
		for _, ix := range st.Indexes {
			if err := t.btx.DeleteBucket(indexBucket(name, ix.Name)); err != nil && err != bbolt.ErrBucketNotFound {
				return core.WrapError(core.KindInternal, err, "cannot drop index %q", ix.Name)
			}
		}
	}
	return nil
}
