package core

import (
	"context"
	"sync"
)

// Request is a single-shot asynchronous result carrier. Every public storage
// operation returns one. A Request resolves exactly once, to either a value
// or an error; later Resolve/Reject calls are ignored.
//
// Callbacks registered with Then before resolution run synchronously on the
// resolving goroutine, in registration order. Callbacks registered after
// resolution fire on a fresh goroutine so the caller never re-enters its own
// stack.
type Request struct {
	mu        sync.Mutex
	done      bool
	value     interface{}
	err       error
	callbacks []callback
	doneCh    chan struct{}
}

type callback struct {
	ok   func(interface{})
	fail func(error)
}

// NewRequest returns an unresolved Request.
func NewRequest() *Request {
	return &Request{doneCh: make(chan struct{})}
}

// Resolved returns a Request already resolved with v.
func Resolved(v interface{}) *Request {
	r := NewRequest()
	r.Resolve(v)
	return r
}

// Rejected returns a Request already rejected with err.
func Rejected(err error) *Request {
	r := NewRequest()
	r.Reject(err)
	return r
}

// Resolve publishes a value. No-op if the request already settled.
func (r *Request) Resolve(v interface{}) {
	r.settle(v, nil)
}

// Reject publishes an error. No-op if the request already settled.
func (r *Request) Reject(err error) {
	r.settle(nil, err)
}

func (r *Request) settle(v interface{}, err error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.value = v
	r.err = err
	cbs := r.callbacks
	r.callbacks = nil
	close(r.doneCh)
	r.mu.Unlock()

	for _, cb := range cbs {
		cb.dispatch(v, err)
	}
}

func (cb callback) dispatch(v interface{}, err error) {
	if err != nil {
		if cb.fail != nil {
			cb.fail(err)
		}
		return
	}
	if cb.ok != nil {
		cb.ok(v)
	}
}

// Then registers completion handlers. Either handler may be nil. Returns the
// receiver for chaining.
func (r *Request) Then(ok func(interface{}), fail func(error)) *Request {
	cb := callback{ok: ok, fail: fail}
	r.mu.Lock()
	if !r.done {
		r.callbacks = append(r.callbacks, cb)
		r.mu.Unlock()
		return r
	}
	v, err := r.value, r.err
	r.mu.Unlock()

	// Already settled: fire on the next tick, never on the caller's stack.
	go cb.dispatch(v, err)
	return r
}

// Await blocks until the request settles or ctx is done.
func (r *Request) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-r.doneCh:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the request has settled.
func (r *Request) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
