package txqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// fakeDriver records the order transactions execute in.
type fakeDriver struct {
	mu    sync.Mutex
	order []string
}

func (f *fakeDriver) Type() string { return "fake" }

func (f *fakeDriver) Connect(string, *schema.Database) *core.Request {
	return core.Resolved(nil)
}

func (f *fakeDriver) DoTransaction(closure func(tx backend.Tx) error, stores []string, mode core.Mode, onComplete core.CompleteFunc) {
	err := closure(nil)
	if err != nil {
		onComplete(core.CompleteError, err)
		return
	}
	onComplete(core.CompleteOK, nil)
}

func (f *fakeDriver) Cmp(a, b key.Key) int { return key.Cmp(a, b) }

func (f *fakeDriver) IsReady() bool { return true }

func (f *fakeDriver) OnDisconnected(func(error)) {}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) mark(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, name)
}

func (f *fakeDriver) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.order...)
}

func submitNamed(q *Queue, d *fakeDriver, name string, mode core.Mode, wg *sync.WaitGroup) {
	wg.Add(1)
	q.Submit(&Request{
		Closure: func(backend.Tx) error {
			d.mark(name)
			return nil
		},
		Mode: mode,
		OnComplete: func(core.CompletionKind, error) {
			wg.Done()
		},
	})
}

func TestQueueBuffersUntilReady(t *testing.T) {
	q := New(false)
	defer q.Close()
	d := &fakeDriver{}
	var wg sync.WaitGroup

	submitNamed(q, d, "a", core.ModeReadWrite, &wg)
	submitNamed(q, d, "b", core.ModeReadOnly, &wg)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, d.executed(), "nothing may run before the connection is ready")
	assert.Equal(t, 2, q.Len())

	q.SetReady(d)
	wg.Wait()
	assert.Equal(t, []string{"a", "b"}, d.executed())
}

func TestQueueStrictFIFO(t *testing.T) {
	q := New(false)
	defer q.Close()
	d := &fakeDriver{}
	q.SetReady(d)

	var wg sync.WaitGroup
	names := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"}
	for _, n := range names {
		submitNamed(q, d, n, core.ModeReadWrite, &wg)
	}
	wg.Wait()
	assert.Equal(t, names, d.executed())
}

func TestQueueCompletionOrder(t *testing.T) {
	// Invariant: if A is submitted before B, A's onComplete fires
	// strictly before B's.
	q := New(false)
	defer q.Close()
	d := &fakeDriver{}

	var mu sync.Mutex
	var completions []string
	var wg sync.WaitGroup
	for _, n := range []string{"a", "b", "c"} {
		name := n
		wg.Add(1)
		q.Submit(&Request{
			Closure: func(backend.Tx) error { return nil },
			Mode:    core.ModeReadWrite,
			OnComplete: func(core.CompletionKind, error) {
				mu.Lock()
				completions = append(completions, name)
				mu.Unlock()
				wg.Done()
			},
		})
	}
	q.SetReady(d)
	wg.Wait()
	assert.Equal(t, []string{"a", "b", "c"}, completions)
}

func TestVersionChangeTotalOrder(t *testing.T) {
	q := New(false)
	defer q.Close()
	d := &fakeDriver{}
	var wg sync.WaitGroup

	submitNamed(q, d, "ro1", core.ModeReadOnly, &wg)
	submitNamed(q, d, "ro2", core.ModeReadOnly, &wg)
	submitNamed(q, d, "vc", core.ModeVersionChange, &wg)
	submitNamed(q, d, "ro3", core.ModeReadOnly, &wg)

	q.SetReady(d)
	wg.Wait()
	assert.Equal(t, []string{"ro1", "ro2", "vc", "ro3"}, d.executed())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	q := New(false)
	defer q.Close()

	var mu sync.Mutex
	dropped := map[string]error{}
	submit := func(name string) {
		q.Submit(&Request{
			Closure: func(backend.Tx) error { return nil },
			Mode:    core.ModeReadWrite,
			OnComplete: func(kind core.CompletionKind, detail error) {
				mu.Lock()
				dropped[name] = detail
				mu.Unlock()
			},
		})
	}

	// Fill the queue before the connection readies, then push one more.
	submit("oldest")
	for i := 1; i < MaxPending; i++ {
		q.Submit(&Request{Closure: func(backend.Tx) error { return nil }, Mode: core.ModeReadWrite})
	}
	assert.Equal(t, MaxPending, q.Len())
	submit("newest")
	assert.Equal(t, MaxPending, q.Len())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, dropped, "oldest")
	assert.Error(t, dropped["oldest"])
	assert.NotContains(t, dropped, "newest")
}

func TestQueuePurge(t *testing.T) {
	q := New(false)
	defer q.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for i := 0; i < 3; i++ {
		wg.Add(1)
		q.Submit(&Request{
			Closure: func(backend.Tx) error { return nil },
			Mode:    core.ModeReadWrite,
			OnComplete: func(kind core.CompletionKind, detail error) {
				mu.Lock()
				errs = append(errs, detail)
				mu.Unlock()
				wg.Done()
			},
		})
	}
	q.Purge(ErrPurged)
	wg.Wait()

	assert.Equal(t, 0, q.Len())
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrPurged)
	}
}

func TestSubmitAfterCloseFailsImmediately(t *testing.T) {
	q := New(false)
	q.Close()

	done := make(chan error, 1)
	q.Submit(&Request{
		Closure: func(backend.Tx) error { return nil },
		Mode:    core.ModeReadWrite,
		OnComplete: func(kind core.CompletionKind, detail error) {
			done <- detail
		},
	})
	select {
	case err := <-done:
		assert.Equal(t, core.KindInvalidState, core.KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("submit after close never completed")
	}
}
