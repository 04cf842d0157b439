package async

import "context"

// Await suspends the calling frame until r completes, then resumes with its
// value or error. Go has no native coroutine suspension, so a frame is
// simply a goroutine and Await is an ordinary blocking call on that
// goroutine; the worker pool is never blocked because frame goroutines run
// off to the side of it, parking only on channel receives.
func Await[T any](ctx context.Context, r *Result[T]) (T, error) {
	return r.Wait(ctx)
}

// RunFrame runs fn on its own goroutine and completes the returned Result with
// whatever fn returns. fn receives a Pool so it can Fork further work and a
// context it should respect for cancellation. This is the coroutine frame:
// a sequence of Await/Fork suspension points, expressed as straight-line Go
// code instead of an explicit state machine.
func RunFrame(ctx context.Context, pool *Pool, fn func(ctx context.Context, pool *Pool) error) *Result[struct{}] {
	r := New[struct{}]()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.Throw(panicToError(rec))
			}
		}()
		if err := fn(ctx, pool); err != nil {
			r.Throw(err)
		} else {
			r.Return(struct{}{})
		}
	}()
	return r
}
