// Package registry implements the endpoint registry and dispatch: a
// process-wide ordered list of providers, each able to score a URI, with
// the highest scorer winning and handling the request asynchronously.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"dream/pkg/async"
	"dream/pkg/logging"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

// Provider is a registered endpoint.
type Provider interface {
	// ScoreAndNormalize reports how well this provider matches u. A score of
	// 0 means "does not handle this URI". The provider may rewrite the URI
	// (e.g. to strip a local prefix); the rewritten form is what Invoke
	// receives.
	ScoreAndNormalize(u uri.URI) (score int, normalized uri.URI)

	// Invoke handles req, completing result exactly once. Invoke itself may
	// return before result completes; the framework never re-throws on its
	// behalf.
	Invoke(ctx context.Context, req *wire.Request, result *async.Result[*wire.Response])
}

// NoRegisteredEndpoint is returned by Dispatch when every provider scored 0.
type NoRegisteredEndpoint struct {
	URI string
}

func (e *NoRegisteredEndpoint) Error() string {
	return fmt.Sprintf("registry: no registered endpoint for %s", e.URI)
}

// Registry is a process-wide ordered list of endpoint providers, guarded by
// a single lock. Scoring itself reads no shared state beyond each
// provider's own internals.
type Registry struct {
	mu        sync.Mutex
	providers []Provider
	group     singleflight.Group
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// AddEndpoint registers p at the end of the dispatch order.
func (r *Registry) AddEndpoint(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

type candidate struct {
	index      int
	provider   Provider
	score      int
	normalized uri.URI
}

// scoreAll computes every registered provider's score for u. Concurrent
// callers racing on the same URI are coalesced with singleflight, so callers
// that arrive while a scoring round for u is in flight share its result
// instead of scoring each provider again.
func (r *Registry) scoreAll(u uri.URI) ([]candidate, error) {
	key := u.String()
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		providers := append([]Provider(nil), r.providers...)
		r.mu.Unlock()

		candidates := make([]candidate, len(providers))
		for i, p := range providers {
			score, normalized := p.ScoreAndNormalize(u)
			candidates[i] = candidate{index: i, provider: p, score: score, normalized: normalized}
		}
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]candidate), nil
}

func bestCandidate(candidates []candidate) (candidate, bool) {
	var best candidate
	found := false
	for _, c := range candidates {
		if c.score <= 0 {
			continue
		}
		if !found || c.score > best.score {
			best = c
			found = true
		}
	}
	return best, found
}

// Dispatch picks the highest-scoring provider for u, ties broken by
// earliest registration, and submits it to pool to invoke asynchronously
// against result. Fails synchronously with NoRegisteredEndpoint if every
// provider scored 0; result is left untouched in that case.
func (r *Registry) Dispatch(pool *async.Pool, verb wire.Verb, u uri.URI, headers http.Header, body *wire.Message, result *async.Result[*wire.Response]) error {
	candidates, err := r.scoreAll(u)
	if err != nil {
		return err
	}

	best, found := bestCandidate(candidates)
	if !found {
		return &NoRegisteredEndpoint{URI: u.String()}
	}

	if headers == nil {
		headers = make(http.Header)
	}
	req := &wire.Request{Verb: verb, URI: best.normalized, Headers: headers, Body: body}
	logging.Debug("Registry", "dispatching %s %s to provider #%d (score=%d)", verb, u.String(), best.index, best.score)

	async.Fork(pool, func(ctx context.Context) (struct{}, error) {
		best.provider.Invoke(ctx, req, result)
		return struct{}{}, nil
	})
	return nil
}
