package async

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is the bounded worker pool that backs Fork: a fixed number of
// concurrent slots shared by every coroutine frame that forks work onto it.
// Built on errgroup rather than a hand-rolled WaitGroup and error channel.
type Pool struct {
	group *errgroup.Group
	sem   chan struct{}
}

// NewPool creates a Pool with the given number of concurrent worker slots.
// A non-positive size is treated as 1.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		group: &errgroup.Group{},
		sem:   make(chan struct{}, workers),
	}
}

// Fork enqueues action on the pool and returns a Result that it will
// complete. The dispatcher never re-throws from a worker: a panic or error
// from action is always delivered through the Result, never surfaced as a
// pool-level failure.
func Fork[T any](p *Pool, action func(ctx context.Context) (T, error)) *Result[T] {
	r := New[T]()
	p.group.Go(func() error {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		defer func() {
			if rec := recover(); rec != nil {
				r.Throw(panicToError(rec))
			}
		}()

		value, err := action(context.Background())
		if err != nil {
			r.Throw(err)
		} else {
			r.Return(value)
		}
		return nil
	})
	return r
}

// Wait blocks until every task forked onto the pool so far has completed.
// It is a join barrier, not a cancellation mechanism; individual task
// failures are already visible on their own Results and never make Wait
// return an error.
func (p *Pool) Wait() {
	_ = p.group.Wait()
}

func panicToError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return &PanicError{Value: rec}
}

// PanicError wraps a recovered panic value so it can travel through a
// Result like any other error.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return "async: recovered panic in forked task"
}
