// Package txqueue buffers transaction requests until the connection is
// ready and then executes them strictly one at a time, in submission order.
// A versionchange request holds the queue exclusively while it runs.
package txqueue

import (
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
)

// MaxPending bounds the queue. Overflow drops the oldest entry so the
// newest work stays live.
const MaxPending = 1000

// Default staleness thresholds: how long the head may sit unexecuted
// before a diagnostic warning is logged.
const (
	StaleAfter      = 3000 * time.Millisecond
	StaleAfterDebug = 500 * time.Millisecond
)

// ErrPurged resolves every pending request when the connection fails.
var ErrPurged = errors.New("transaction queue purged")

// Request is one buffered transaction: a closure, its declared store
// scope, a mode, and the completion callback.
type Request struct {
	Closure    func(tx backend.Tx) error
	Stores     []string
	Mode       core.Mode
	OnComplete core.CompleteFunc

	enqueued time.Time
}

// Queue is the FIFO of pending transaction requests. One goroutine drains
// it; the backend therefore sees a single logical submitter.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Request
	driver  backend.Driver
	ready   bool
	closed  bool

	// versionHold is set while a versionchange transaction runs; it is
	// diagnostic only, since serial execution already orders everything
	// behind it.
	versionHold bool

	staleAfter time.Duration
	warnLimit  *rate.Limiter
}

// New builds an empty queue. Debug mode shortens the staleness threshold.
func New(debug bool) *Queue {
	q := &Queue{
		staleAfter: StaleAfter,
		warnLimit:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if debug {
		q.staleAfter = StaleAfterDebug
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	go q.monitor()
	return q
}

// Submit appends a request. If the queue is full the oldest entry is
// dropped with a warning and its completion resolves with the overflow
// error, so no submitter hangs.
func (q *Queue) Submit(r *Request) {
	r.enqueued = time.Now()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		complete(r, core.WrapError(core.KindInvalidState, ErrPurged, "connection is closed"))
		return
	}
	var dropped *Request
	if len(q.pending) >= MaxPending {
		dropped = q.pending[0]
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, r)
	q.cond.Signal()
	q.mu.Unlock()

	if dropped != nil {
		if q.warnLimit.Allow() {
			log.Printf("[QUEUE] overflow: dropping oldest pending transaction (limit %d)", MaxPending)
		}
		complete(dropped, core.NewError(core.KindInternal, "transaction dropped: queue overflow"))
	}
}

func complete(r *Request, err error) {
	if r.OnComplete != nil {
		r.OnComplete(core.CompleteError, err)
	}
}

// SetReady hands the queue its driver; buffered requests become eligible.
func (q *Queue) SetReady(d backend.Driver) {
	q.mu.Lock()
	q.driver = d
	q.ready = true
	q.cond.Signal()
	q.mu.Unlock()
}

// Purge fails every pending request with reason and clears the queue.
// Called on connection failure.
func (q *Queue) Purge(reason error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, r := range pending {
		complete(r, core.WrapError(core.KindInternal, reason, "transaction purged"))
	}
}

// Close purges the queue and stops the drain loop.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.Purge(ErrPurged)
}

// Len reports how many requests are buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// VersionChangeActive reports whether a versionchange transaction is
// currently holding the queue.
func (q *Queue) VersionChangeActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.versionHold
}

// run drains the queue: pop the head, execute it through the driver, wait
// for its completion, repeat. Execution is synchronous inside the loop so
// requests never overlap.
func (q *Queue) run() {
	for {
		q.mu.Lock()
		for !q.closed && (!q.ready || len(q.pending) == 0) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		head := q.pending[0]
		q.pending = q.pending[1:]
		driver := q.driver
		if head.Mode == core.ModeVersionChange {
			q.versionHold = true
		}
		q.mu.Unlock()

		done := make(chan struct{})
		driver.DoTransaction(head.Closure, head.Stores, head.Mode, func(kind core.CompletionKind, detail error) {
			if head.OnComplete != nil {
				head.OnComplete(kind, detail)
			}
			close(done)
		})
		<-done

		q.mu.Lock()
		q.versionHold = false
		q.mu.Unlock()
	}
}

// monitor logs when the head has not advanced within the staleness
// threshold. Diagnostic only; nothing is cancelled.
func (q *Queue) monitor() {
	ticker := time.NewTicker(StaleAfterDebug)
	defer ticker.Stop()
	for range ticker.C {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		var age time.Duration
		if len(q.pending) > 0 {
			age = time.Since(q.pending[0].enqueued)
		}
		stale := age > q.staleAfter
		n := len(q.pending)
		q.mu.Unlock()
		if stale && q.warnLimit.Allow() {
			log.Printf("[QUEUE] head of queue stale for %s (%d pending)", age.Round(time.Millisecond), n)
		}
	}
}
