// Package unistore exposes one structured-storage API over heterogeneous
// backends: an embedded ordered object store, relational SQL engines, and
// key-value services. Client code works with named stores and declarative
// queries; the active backend is selected once, at connection time.
package unistore

import (
	"log"
	"sync"

	"github.com/rzpsarthak13/unistore/internal/backend"
	_ "github.com/rzpsarthak13/unistore/internal/backend/bolt"
	_ "github.com/rzpsarthak13/unistore/internal/backend/dynamokv"
	_ "github.com/rzpsarthak13/unistore/internal/backend/memkv"
	_ "github.com/rzpsarthak13/unistore/internal/backend/mysqldb"
	_ "github.com/rzpsarthak13/unistore/internal/backend/rediskv"
	_ "github.com/rzpsarthak13/unistore/internal/backend/sqlite"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/events"
	"github.com/rzpsarthak13/unistore/internal/schema"
	"github.com/rzpsarthak13/unistore/internal/txqueue"
)

// Request is the single-shot asynchronous result handle every operation
// returns.
type Request = core.Request

// Record is a stored record.
type Record = core.Record

// Tx is the transaction surface handed to Transaction closures.
type Tx = backend.Tx

// Mode aliases the transaction modes.
type Mode = core.Mode

const (
	ReadOnly      = core.ModeReadOnly
	ReadWrite     = core.ModeReadWrite
	VersionChange = core.ModeVersionChange
)

// Direction aliases the cursor directions.
type Direction = core.Direction

const (
	Next       = core.DirNext
	NextUnique = core.DirNextUnique
	Prev       = core.DirPrev
	PrevUnique = core.DirPrevUnique
)

// Event is a committed change notification.
type Event = events.Event

// Storage is one logical database connection: a selected backend, the
// declared schema, and the transaction queue that serializes every request
// against it.
type Storage struct {
	name   string
	opts   Options
	driver backend.Driver
	queue  *txqueue.Queue
	events *events.Dispatcher

	mu          sync.Mutex
	db          *schema.Database
	failed      error
	onConnected []func()
	onFail      []func(error)
	readyReq    *core.Request
}

// New opens a Storage against the first supported mechanism. The
// connection readies asynchronously: operations submitted before that are
// buffered and run in order once the backend reports ready. Mechanism
// selection itself is synchronous, and no supported mechanism at all is a
// ConstraintError.
func New(name string, schemaSrc interface{}, options ...Option) (*Storage, error) {
	var opts Options
	for _, opt := range options {
		opt(&opts)
	}
	db, err := resolveSchema(schemaSrc, &opts)
	if err != nil {
		return nil, err
	}
	driver, err := backend.Probe(opts.Mechanisms, opts.backendConfig(name))
	if err != nil {
		return nil, err
	}
	s := &Storage{
		name:     name,
		opts:     opts,
		driver:   driver,
		queue:    txqueue.New(opts.Debug),
		events:   events.NewDispatcher(),
		db:       db,
		readyReq: core.NewRequest(),
	}
	if len(opts.EventBrokers) > 0 && opts.EventTopic != "" {
		s.events.SetSink(events.NewKafkaSink(opts.EventBrokers, opts.EventTopic))
	}
	driver.OnDisconnected(func(err error) {
		log.Printf("[STORAGE] %q disconnected: %v", name, err)
		s.queue.Purge(err)
	})
	driver.Connect(name, db).Then(func(interface{}) {
		s.queue.SetReady(driver)
		s.readyReq.Resolve(driver.Type())
		s.mu.Lock()
		fns := append([]func(){}, s.onConnected...)
		s.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}, func(err error) {
		log.Printf("[STORAGE] %q failed to open: %v", name, err)
		s.mu.Lock()
		s.failed = err
		fns := append([]func(error){}, s.onFail...)
		s.mu.Unlock()
		for _, fn := range fns {
			fn(err)
		}
		s.readyReq.Reject(err)
		// The opening failure also reaches every buffered request.
		s.queue.Purge(err)
	})
	return s, nil
}

// Ready resolves with the selected mechanism identifier once the
// connection is usable, or rejects with the open failure.
func (s *Storage) Ready() *Request {
	return s.readyReq
}

// OnConnected registers fn to run when the connection first becomes ready.
func (s *Storage) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = append(s.onConnected, fn)
}

// OnFail registers fn to run if the open fails.
func (s *Storage) OnFail(fn func(error)) {
	s.mu.Lock()
	if s.failed != nil {
		err := s.failed
		s.mu.Unlock()
		fn(err)
		return
	}
	s.onFail = append(s.onFail, fn)
	s.mu.Unlock()
}

// IsReady reports whether the backend finished connecting.
func (s *Storage) IsReady() bool {
	return s.driver.IsReady()
}

// Type returns the selected mechanism identifier.
func (s *Storage) Type() string {
	return s.driver.Type()
}

// GetSchema returns the declared schema.
func (s *Storage) GetSchema() (*Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return declOf(s.db)
}

// AddStoreSchema adds a store at runtime. Only auto-schema databases allow
// it; the addition runs as a versionchange transaction so it is totally
// ordered against every other transaction.
func (s *Storage) AddStoreSchema(decl StoreSchema) *Request {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	st, err := storeFromDecl(decl)
	if err != nil {
		return core.Rejected(err)
	}
	if err := db.AddStore(st); err != nil {
		return core.Rejected(err)
	}
	return s.withTx([]string{st.Name}, core.ModeVersionChange, func(tx backend.Tx) (interface{}, error) {
		return nil, tx.CreateStore(st)
	}, nil)
}

func storeFromDecl(decl StoreSchema) (*schema.Store, error) {
	kp, err := schema.NewKeyPath(decl.KeyPath)
	if err != nil {
		return nil, err
	}
	st := &schema.Store{
		Name:          decl.Name,
		KeyPath:       kp,
		Type:          keyTypeOf(decl.Type),
		AutoIncrement: decl.AutoIncrement,
	}
	if st.Name == "" {
		return nil, core.NewError(core.KindArgument, "store declaration missing name")
	}
	for _, ixd := range decl.Indexes {
		ixp, err := schema.NewKeyPath(ixd.KeyPath)
		if err != nil {
			return nil, err
		}
		if ixp.Empty() {
			ixp = schema.MustKeyPath(ixd.Name)
		}
		st.Indexes = append(st.Indexes, &schema.Index{
			Name:       ixd.Name,
			KeyPath:    ixp,
			Type:       keyTypeOf(ixd.Type),
			Unique:     ixd.Unique,
			MultiEntry: ixd.MultiEntry,
		})
	}
	return st, nil
}

// Subscribe registers fn for one store's committed change events and
// returns the unsubscribe function.
func (s *Storage) Subscribe(store string, fn func(Event)) func() {
	return s.events.Subscribe(store, fn)
}

// Transaction runs closure inside one backend transaction scoped to stores
// in the given mode, through the queue like every other request.
func (s *Storage) Transaction(closure func(tx Tx) error, stores []string, mode Mode, onComplete func(kind string, detail error)) {
	s.queue.Submit(&txqueue.Request{
		Closure: closure,
		Stores:  stores,
		Mode:    mode,
		OnComplete: func(kind core.CompletionKind, detail error) {
			if onComplete != nil {
				onComplete(string(kind), detail)
			}
		},
	})
}

// withTx submits fn as one transaction and resolves the returned request
// with fn's result once the transaction commits. Committed change events
// publish after resolution.
func (s *Storage) withTx(stores []string, mode core.Mode, fn func(tx backend.Tx) (interface{}, error), evts *[]Event) *core.Request {
	req := core.NewRequest()
	var result interface{}
	s.queue.Submit(&txqueue.Request{
		Closure: func(tx backend.Tx) error {
			v, err := fn(tx)
			result = v
			return err
		},
		Stores: stores,
		Mode:   mode,
		OnComplete: func(kind core.CompletionKind, detail error) {
			if kind != core.CompleteOK {
				req.Reject(detail)
				return
			}
			req.Resolve(result)
			if evts != nil {
				s.events.Publish(*evts)
			}
		},
	})
	return req
}

// Close shuts the queue, the event sink and the backend.
func (s *Storage) Close() error {
	s.queue.Close()
	s.events.Close()
	return s.driver.Close()
}

// storeNames lists the declared store names.
func (s *Storage) storeNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.StoreNames()
}

func (s *Storage) schemaDB() *schema.Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}
