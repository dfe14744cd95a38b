package kv

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// schemaBucket persists the reconciled schema JSON.
const schemaBucket = "_schema"

// Driver lifts a Service to the full backend contract. Transactions are
// serialized with a mutex; isolation is whatever the service provides
// beyond that.
type Driver struct {
	typ string
	svc Service

	mu       sync.Mutex
	name     string
	schema   *schema.Database
	ready    bool
	onDisc   []func(error)
	txSerial sync.Mutex
}

// NewDriver wraps a key-value service.
func NewDriver(typ string, svc Service) *Driver {
	return &Driver{typ: typ, svc: svc}
}

func (d *Driver) Type() string         { return d.typ }
func (d *Driver) Cmp(a, b key.Key) int { return key.Cmp(a, b) }

func (d *Driver) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *Driver) OnDisconnected(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDisc = append(d.onDisc, fn)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
	return d.svc.Close()
}

// bucketFor namespaces a store within the logical database.
func (d *Driver) bucketFor(store string) string {
	return d.name + ":" + store
}

// Connect records the declared schema in the service and resolves once that
// write succeeds. Key-value services have no DDL; no persisted schema is
// read back.
func (d *Driver) Connect(name string, db *schema.Database) *core.Request {
	req := core.NewRequest()
	go func() {
		ctx := context.Background()
		d.mu.Lock()
		d.name = name
		d.mu.Unlock()
		raw, err := db.ToJSON()
		if err != nil {
			req.Reject(core.WrapError(core.KindInternal, err, "cannot serialize schema"))
			return
		}
		if err := d.svc.Set(ctx, d.bucketFor(schemaBucket), []byte(name), raw); err != nil {
			req.Reject(core.WrapError(core.KindInternal, err, "%s backend unavailable", d.typ))
			return
		}
		d.mu.Lock()
		d.schema = db
		d.ready = true
		d.mu.Unlock()
		log.Printf("[KV] connected %s database %q", d.typ, name)
		req.Resolve(nil)
	}()
	return req
}

// DoTransaction serializes closures; there is no rollback beyond reporting
// the closure's error, matching the durability the underlying services
// offer.
func (d *Driver) DoTransaction(closure func(tx backend.Tx) error, stores []string, mode core.Mode, onComplete core.CompleteFunc) {
	d.txSerial.Lock()
	defer d.txSerial.Unlock()
	if onComplete == nil {
		onComplete = func(core.CompletionKind, error) {}
	}
	tx := &Tx{driver: d, ctx: context.Background(), mode: mode, scope: stores}
	err := closure(tx)
	tx.done = true
	for _, c := range tx.cursors {
		c.invalid = true
	}
	if err != nil {
		onComplete(core.CompleteError, err)
		return
	}
	onComplete(core.CompleteOK, nil)
}

// Tx implements backend.Tx over the service.
type Tx struct {
	driver  *Driver
	ctx     context.Context
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
	pairs, err := t.driver.svc.Scan(t.ctx, t.driver.bucketFor(st.Name))
	if err != nil {
		return key.Key{}, core.WrapError(core.KindInternal, err, "cannot advance key sequence for %q", st.Name)
	}
	max := 0.0
	for _, p := range pairs {
		k, _, err := key.Decode(p.Key)
		if err == nil && k.IsNumber() && k.Number() > max {
			max = k.Number()
		}
	}
	return key.Number(max + 1), nil
}

func (t *Tx) write(st *schema.Store, rec core.Record, k key.Key) (key.Key, error) {
	st.InjectKey(rec, k)
	raw, err := json.Marshal(rec)
	if err != nil {
		return key.Key{}, core.WrapError(core.KindArgument, err, "record is not serializable")
	}
	if err := t.driver.svc.Set(t.ctx, t.driver.bucketFor(st.Name), k.Encode(), raw); err != nil {
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
	return t.write(st, rec, k)
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
	existing, err := t.driver.svc.Get(t.ctx, t.driver.bucketFor(store), k.Encode())
	if err != nil {
		return key.Key{}, core.WrapError(core.KindInternal, err, "add into %q failed", store)
	}
	if existing != nil {
		return key.Key{}, core.NewError(core.KindConstraint, "key %s already exists in store %q", k, store)
	}
	return t.write(st, rec, k)
}

// Get returns the record under k, or nil.
func (t *Tx) Get(store string, k key.Key) (core.Record, error) {
	if _, err := t.check(store, false); err != nil {
		return nil, err
	}
	if !k.Defined() {
		return nil, core.NewError(core.KindArgument, "key is required")
	}
	raw, err := t.driver.svc.Get(t.ctx, t.driver.bucketFor(store), k.Encode())
	if err != nil {
		return nil, core.WrapError(core.KindInternal, err, "get from %q failed", store)
	}
	if raw == nil {
		return nil, nil
	}
	return decodeRecord(raw)
}

func decodeRecord(raw []byte) (core.Record, error) {
	var rec core.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, core.WrapError(core.KindInternal, err, "stored record is corrupt")
	}
	return rec, nil
}

// scanRange decodes every pair whose primary key lies in rng, in key order.
func (t *Tx) scanRange(store string, rng key.Range) ([]key.Key, []core.Record, error) {
	pairs, err := t.driver.svc.Scan(t.ctx, t.driver.bucketFor(store))
	if err != nil {
		return nil, nil, core.WrapError(core.KindInternal, err, "scan of %q failed", store)
	}
	var keys []key.Key
	var recs []core.Record
	for _, p := range pairs {
		k, _, err := key.Decode(p.Key)
		if err != nil {
			return nil, nil, err
		}
		if !rng.Contains(k) {
			continue
		}
		rec, err := decodeRecord(p.Value)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, k)
		recs = append(recs, rec)
	}
	return keys, recs, nil
}

// List returns records with primary keys in rng, in key order.
func (t *Tx) List(store string, rng key.Range) ([]core.Record, error) {
	if _, err := t.check(store, false); err != nil {
		return nil, err
	}
	_, recs, err := t.scanRange(store, rng)
	return recs, err
}

// Count returns how many primary keys fall in rng.
func (t *Tx) Count(store string, rng key.Range) (int, error) {
	if _, err := t.check(store, false); err != nil {
		return 0, err
	}
	keys, _, err := t.scanRange(store, rng)
	return len(keys), err
}

// Clear removes every record of the store.
func (t *Tx) Clear(store string) error {
	if _, err := t.check(store, true); err != nil {
		return err
	}
	if _, err := t.driver.svc.DropBucket(t.ctx, t.driver.bucketFor(store)); err != nil {
		return core.WrapError(core.KindInternal, err, "clear of %q failed", store)
	}
	return nil
}

// Remove deletes primary keys in rng and returns the count removed.
func (t *Tx) Remove(store string, rng key.Range) (int, error) {
	if _, err := t.check(store, true); err != nil {
		return 0, err
	}
	keys, _, err := t.scanRange(store, rng)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		ok, err := t.driver.svc.Delete(t.ctx, t.driver.bucketFor(store), k.Encode())
		if err != nil {
			return removed, core.WrapError(core.KindInternal, err, "remove from %q failed", store)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// CreateStore records the new store declaration; buckets materialize on
// first write.
func (t *Tx) CreateStore(st *schema.Store) error {
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	return nil
}

// DropStore removes the store's bucket.
func (t *Tx) DropStore(name string) error {
	if t.mode != core.ModeVersionChange {
		return core.NewError(core.KindInvalidState, "schema mutation outside a versionchange transaction")
	}
	_, err := t.driver.svc.DropBucket(t.ctx, t.driver.bucketFor(name))
	if err != nil {
		return core.WrapError(core.KindInternal, err, "cannot drop store %q", name)
	}
	return nil
}
