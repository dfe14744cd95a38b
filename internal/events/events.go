// Package events publishes record and store change notifications after a
// readwrite transaction commits. Delivery is in-process by default; an
// optional sink (Kafka) mirrors the stream out of process.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rzpsarthak13/unistore/internal/core"
)

// Event is one committed change.
type Event struct {
	Type   core.EventType `json:"type"`
	Store  string         `json:"store"`
	Key    interface{}    `json:"key,omitempty"`
	Record core.Record    `json:"record,omitempty"`
	Time   time.Time      `json:"time"`
}

// Sink receives the event stream out of process.
type Sink interface {
	Publish(ctx context.Context, evts []Event) error
	Close() error
}

// Dispatcher fans committed events out to per-store subscribers and the
// optional sink.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
	sink Sink
}

type subscription struct {
	fn func(Event)
}

// NewDispatcher builds a dispatcher with no subscribers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: map[string][]*subscription{}}
}

// SetSink attaches an out-of-process sink. Pass nil to detach.
func (d *Dispatcher) SetSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = s
}

// Subscribe registers fn for one store's events and returns the
// unsubscribe function.
func (d *Dispatcher) Subscribe(store string, fn func(Event)) func() {
	sub := &subscription{fn: fn}
	d.mu.Lock()
	d.subs[store] = append(d.subs[store], sub)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		list := d.subs[store]
		for i, s := range list {
			if s == sub {
				d.subs[store] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers events to matching subscribers, then forwards the batch
// to the sink. Called after the owning transaction committed.
func (d *Dispatcher) Publish(evts []Event) {
	if len(evts) == 0 {
		return
	}
	d.mu.RLock()
	sink := d.sink
	byEvent := make([][]func(Event), len(evts))
	for i, e := range evts {
		for _, s := range d.subs[e.Store] {
			byEvent[i] = append(byEvent[i], s.fn)
		}
	}
	d.mu.RUnlock()

	for i, e := range evts {
		for _, fn := range byEvent[i] {
			fn(e)
		}
	}
	if sink != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Publish(ctx, evts); err != nil {
				log.Printf("[EVENTS] sink publish failed: %v", err)
			}
		}()
	}
}

// Close detaches and closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	sink := d.sink
	d.sink = nil
	d.mu.Unlock()
	if sink != nil {
		return sink.Close()
	}
	return nil
}
