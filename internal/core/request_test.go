package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResolvesOnce(t *testing.T) {
	r := NewRequest()
	r.Resolve(42)
	r.Resolve(43)
	r.Reject(errors.New("late"))

	v, err := r.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRequestCallbacksBeforeResolution(t *testing.T) {
	r := NewRequest()
	got := make(chan interface{}, 1)
	r.Then(func(v interface{}) { got <- v }, nil)
	r.Resolve("done")

	select {
	case v := <-got:
		assert.Equal(t, "done", v)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestRequestCallbacksAfterResolution(t *testing.T) {
	r := Resolved("early")
	got := make(chan interface{}, 1)
	r.Then(func(v interface{}) { got <- v }, nil)

	select {
	case v := <-got:
		assert.Equal(t, "early", v)
	case <-time.After(time.Second):
		t.Fatal("late-registered callback never fired")
	}
}

func TestRequestRejection(t *testing.T) {
	boom := NewError(KindConstraint, "collision")
	r := Rejected(boom)
	_, err := r.Await(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConstraint, KindOf(err))
}

func TestRequestAwaitHonorsContext(t *testing.T) {
	r := NewRequest()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorKinds(t *testing.T) {
	err := WrapError(KindInternal, errors.New("disk"), "backend failed")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.True(t, IsKind(err, KindInternal))
	assert.False(t, IsKind(err, KindConstraint))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
