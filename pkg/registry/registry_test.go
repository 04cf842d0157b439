package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dream/pkg/async"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

type stubProvider struct {
	score    int
	invoked  bool
	respond  func(result *async.Result[*wire.Response])
	normFunc func(u uri.URI) uri.URI
}

func (p *stubProvider) ScoreAndNormalize(u uri.URI) (int, uri.URI) {
	if p.normFunc != nil {
		return p.score, p.normFunc(u)
	}
	return p.score, u
}

func (p *stubProvider) Invoke(ctx context.Context, req *wire.Request, result *async.Result[*wire.Response]) {
	p.invoked = true
	if p.respond != nil {
		p.respond(result)
		return
	}
	result.Return(&wire.Response{Status: 200})
}

func mustParse(t *testing.T, raw string) uri.URI {
	t.Helper()
	u, err := uri.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDispatch_PicksHighestScore(t *testing.T) {
	r := New()
	low := &stubProvider{score: 1}
	high := &stubProvider{score: 5}
	r.AddEndpoint(low)
	r.AddEndpoint(high)

	pool := async.NewPool(2)
	result := async.New[*wire.Response]()
	err := r.Dispatch(pool, wire.GET, mustParse(t, "http://example.com/a"), nil, nil, result)
	require.NoError(t, err)

	resp, err := result.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.False(t, low.invoked)
	require.True(t, high.invoked)
}

func TestDispatch_TiesBreakByRegistrationOrder(t *testing.T) {
	r := New()
	first := &stubProvider{score: 3}
	second := &stubProvider{score: 3}
	r.AddEndpoint(first)
	r.AddEndpoint(second)

	pool := async.NewPool(2)
	result := async.New[*wire.Response]()
	require.NoError(t, r.Dispatch(pool, wire.GET, mustParse(t, "http://example.com/a"), nil, nil, result))

	_, err := result.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, first.invoked)
	require.False(t, second.invoked)
}

func TestDispatch_NoRegisteredEndpoint(t *testing.T) {
	r := New()
	r.AddEndpoint(&stubProvider{score: 0})

	pool := async.NewPool(2)
	result := async.New[*wire.Response]()
	err := r.Dispatch(pool, wire.GET, mustParse(t, "http://example.com/a"), nil, nil, result)

	var notFound *NoRegisteredEndpoint
	require.ErrorAs(t, err, &notFound)
}

func TestDispatch_ConcurrentCallsCoalesceScoring(t *testing.T) {
	r := New()
	counts := 0
	counter := &stubProvider{score: 1, normFunc: func(u uri.URI) uri.URI {
		counts++
		return u
	}}
	r.AddEndpoint(counter)

	pool := async.NewPool(8)
	u := mustParse(t, "http://example.com/same")

	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		go func() {
			result := async.New[*wire.Response]()
			_ = r.Dispatch(pool, wire.GET, u, nil, nil, result)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	require.LessOrEqual(t, counts, 20) // singleflight may coalesce, never duplicates beyond call count
}

func TestDispatch_ResultHonorsDeadline(t *testing.T) {
	r := New()
	stuck := &stubProvider{score: 1, respond: func(result *async.Result[*wire.Response]) {
		// never completes on its own; the caller's deadline decides instead
	}}
	r.AddEndpoint(stuck)

	pool := async.NewPool(2)
	result := async.NewWithDeadline[*wire.Response](20 * time.Millisecond)
	require.NoError(t, r.Dispatch(pool, wire.GET, mustParse(t, "http://example.com/a"), nil, nil, result))

	_, err := result.Wait(context.Background())
	require.ErrorIs(t, err, async.ErrTimeout)
}
