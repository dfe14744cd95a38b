// Package memkv provides the in-memory key-value mechanisms: "memory"
// keeps databases alive for the process lifetime so reconnecting by name
// sees earlier data, while "session" is scoped to one connection and
// vanishes on close.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/backend/kv"
)

func init() {
	backend.Register(factory{typ: "memory"})
	backend.Register(factory{typ: "session"})
}

type factory struct {
	typ string
}

func (f factory) Type() string { return f.typ }

// IsSupported is unconditionally true; memory is the mechanism of last
// resort in the default probe order.
func (f factory) IsSupported(backend.Config) bool { return true }

func (f factory) Create(cfg backend.Config) (backend.Driver, error) {
	if f.typ == "memory" {
		return kv.NewDriver("memory", processStore(cfg.Name)), nil
	}
	return kv.NewDriver("session", newStore()), nil
}

var (
	processMu  sync.Mutex
	processDBs = map[string]*Store{}
)

// processStore returns the process-wide store for a database name,
// creating it on first use.
func processStore(name string) *Store {
	processMu.Lock()
	defer processMu.Unlock()
	if s, ok := processDBs[name]; ok {
		return s
	}
	s := newStore()
	processDBs[name] = s
	return s
}

// Store is a bucketized in-memory byte map implementing kv.Service.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func newStore() *Store {
	return &Store{buckets: map[string]map[string][]byte{}}
}

func (s *Store) Get(_ context.Context, bucket string, k []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, nil
	}
	v, ok := b[string(k)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *Store) Set(_ context.Context, bucket string, k, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = map[string][]byte{}
		s.buckets[bucket] = b
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	b[string(k)] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, bucket string, k []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return false, nil
	}
	if _, ok := b[string(k)]; !ok {
		return false, nil
	}
	delete(b, string(k))
	return true, nil
}

func (s *Store) Scan(_ context.Context, bucket string) ([]kv.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, nil
	}
	pairs := make([]kv.Pair, 0, len(b))
	for k, v := range b {
		pairs = append(pairs, kv.Pair{Key: []byte(k), Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0
	})
	return pairs, nil
}

func (s *Store) DropBucket(_ context.Context, bucket string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.buckets[bucket])
	delete(s.buckets, bucket)
	return n, nil
}

func (s *Store) Close() error { return nil }
