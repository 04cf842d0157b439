package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_ProcessesEnqueuedItems(t *testing.T) {
	var processed int32
	var wg sync.WaitGroup
	wg.Add(3)

	q := New(10, 2, Handler[int](func(ctx context.Context, item int) error {
		atomic.AddInt32(&processed, int32(item))
		wg.Done()
		return nil
	}))
	defer q.Close()

	require.True(t, q.TryEnqueue(1))
	require.True(t, q.TryEnqueue(2))
	require.True(t, q.TryEnqueue(3))

	waitOrTimeout(t, &wg, time.Second)
	require.Equal(t, int32(6), atomic.LoadInt32(&processed))
}

func TestQueue_TryEnqueueFailsClosedAtCapacity(t *testing.T) {
	block := make(chan struct{})
	q := New(1, 1, Handler[int](func(ctx context.Context, item int) error {
		<-block
		return nil
	}))
	defer func() {
		close(block)
		q.Close()
	}()

	require.True(t, q.TryEnqueue(1)) // claimed by the single worker
	require.True(t, q.TryEnqueue(2)) // fills the capacity-1 buffer
	require.False(t, q.TryEnqueue(3))
}

func TestQueue_HandlerErrorIsDroppedNotRetried(t *testing.T) {
	var calls int32
	q := New(10, 1, Handler[int](func(ctx context.Context, item int) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))
	defer q.Close()

	require.True(t, q.TryEnqueue(1))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls)) // no retry
}

func TestQueue_CloseStopsWorkers(t *testing.T) {
	var calls int32
	q := New(5, 2, Handler[int](func(ctx context.Context, item int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	q.Close()

	q.TryEnqueue(1)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for queue to process items")
	}
}
