// Package bolt implements the embedded ordered object-store mechanism over
// bbolt. Records live in one bucket per store under order-preserving
// encoded primary keys; every index gets its own bucket whose entry keys
// are (index key, primary key) tuples, so range scans ride the B-tree
// order directly with no client-side sorting.
package bolt

import (
	"fmt"
	"log"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

func init() {
	backend.Register(factory{})
}

type factory struct{}

func (factory) Type() string { return "bolt" }

// IsSupported requires a file location: the engine is chosen when the
// caller configured a path or named the database.
func (factory) IsSupported(cfg backend.Config) bool {
	return cfg.Path != "" || cfg.Name != ""
}

func (factory) Create(cfg backend.Config) (backend.Driver, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Name + ".bolt"
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	if cfg.Size > 0 {
		db.AllocSize = int(cfg.Size)
	}
	return &Driver{db: db}, nil
}

const metaBucket = "_meta"

// Driver implements backend.Driver over a bbolt handle.
type Driver struct {
	db *bbolt.DB

	mu       sync.Mutex
	name     string
	schema   *schema.Database
	ready    bool
	onDisc   []func(error)
	txSerial sync.Mutex
}

func (d *Driver) Type() string         { return "bolt" }
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
	return d.db.Close()
}

func storeBucket(store string) []byte {
	return []byte(store)
}

func indexBucket(store, index string) []byte {
	return []byte(store + "." + index)
}

// Connect ensures buckets exist for every declared store and index,
// upgrading from the persisted schema when the declaration is not similar.
func (d *Driver) Connect(name string, db *schema.Database) *core.Request {
	req := core.NewRequest()
	go func() {
		err := d.db.Update(func(btx *bbolt.Tx) error {
			meta, err := btx.CreateBucketIfNotExists([]byte(metaBucket))
			if err != nil {
				return core.WrapError(core.KindInternal, err, "cannot create meta bucket")
			}
			var persisted *schema.Database
			if raw := meta.Get([]byte("schema:" + name)); raw != nil {
				persisted, err = schema.FromJSON(raw)
				if err != nil {
					return err
				}
			}
			if persisted != nil && db.Similar(persisted) {
				return nil
			}
			delta := db.Stores
			if persisted != nil {
				delta = db.Difference(persisted)
			}
			for _, st := range delta {
				if err := createStoreBuckets(btx, st); err != nil {
					return err
				}
			}
			if persisted != nil {
				if err := dropRemovedIndexBuckets(btx, db, persisted); err != nil {
					return err
				}
			}
			raw, err := db.ToJSON()
			if err != nil {
				return core.WrapError(core.KindInternal, err, "cannot serialize schema")
			}
			return meta.Put([]byte("schema:"+name), raw)
		})
		if err != nil {
			req.Reject(err)
			return
		}
		d.mu.Lock()
		d.name = name
		d.schema = db
		d.ready = true
		d.mu.Unlock()
		log.Printf("[BOLT] connected database %q (version %d)", name, db.EffectiveVersion())
		req.Resolve(nil)
	}()
	return req
}

// dropRemovedIndexBuckets deletes the entry bucket of every persisted index
// that the declared schema no longer carries, so stale ordering structures
// do not survive a reconnect.
func dropRemovedIndexBuckets(btx *bbolt.Tx, db, persisted *schema.Database) error {
	for _, old := range persisted.Stores {
		st := db.Store(old.Name)
		if st == nil {
			continue
		}
		for _, oix := range old.Indexes {
			if st.Index(oix.Name) != nil {
				continue
			}
			if err := btx.DeleteBucket(indexBucket(old.Name, oix.Name)); err != nil && err != bbolt.ErrBucketNotFound {
				return core.WrapError(core.KindInternal, err, "cannot drop index %q of store %q", oix.Name, old.Name)
			}
		}
	}
	return nil
}

func createStoreBuckets(btx *bbolt.Tx, st *schema.Store) error {
	if _, err := btx.CreateBucketIfNotExists(storeBucket(st.Name)); err != nil {
		return core.WrapError(core.KindInternal, err, "cannot create bucket for store %q", st.Name)
	}
	for _, ix := range st.Indexes {
		if _, err := btx.CreateBucketIfNotExists(indexBucket(st.Name, ix.Name)); err != nil {
			return core.WrapError(core.KindInternal, err, "cannot create bucket for index %q of %q", ix.Name, st.Name)
		}
	}
	return nil
}

// DoTransaction maps readonly onto a bbolt View and everything else onto
// an Update; a closure error rolls the bbolt transaction back.
func (d *Driver) DoTransaction(closure func(tx backend.Tx) error, stores []string, mode core.Mode, onComplete core.CompleteFunc) {
	d.txSerial.Lock()
	defer d.txSerial.Unlock()
	if onComplete == nil {
		onComplete = func(core.CompletionKind, error) {}
	}
	run := func(btx *bbolt.Tx) error {
		tx := &Tx{driver: d, btx: btx, mode: mode, scope: stores}
		err := closure(tx)
		tx.done = true
		for _, c := range tx.cursors {
			c.invalid = true
		}
		return err
	}
	var err error
	if mode == core.ModeReadOnly {
		err = d.db.View(run)
	} else {
		err = d.db.Update(run)
	}
	if err != nil {
		onComplete(core.CompleteError, err)
		return
	}
	onComplete(core.CompleteOK, nil)
}
