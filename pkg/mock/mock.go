// Package mock implements the interception plane: an endpoint provider that
// always outscores production endpoints for the URIs (and descendants)
// registered against it, in either an unordered scored Setup mode or an
// ordered AutoMock mode.
package mock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dream/pkg/async"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

// MaxScore is reported by ScoreAndNormalize for any registered base (and
// its children), chosen to outrank any plausible production endpoint score.
const MaxScore = 1 << 30

type entryMode int

const (
	modeSetup entryMode = iota
	modeAuto
)

type entry struct {
	base uri.URI
	mode entryMode

	mu         sync.Mutex
	candidates []*Candidate

	auto *autoMockState
}

// Mock is a registry.Provider implementing the interception plane.
type Mock struct {
	mu       sync.Mutex
	byKey    map[string]*entry
	trie     *uri.Trie[*entry]
	onResets []func()
}

// New returns an empty Mock.
func New() *Mock {
	return &Mock{
		byKey: make(map[string]*entry),
		trie:  uri.NewTrie[*entry](),
	}
}

// OnReset registers fn to run whenever DeregisterAll is called, so caches
// keyed on mock state may invalidate themselves.
func (m *Mock) OnReset(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResets = append(m.onResets, fn)
}

func (m *Mock) entryFor(base uri.URI, mode entryMode) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := base.SchemeHostPortPath()
	if e, ok := m.byKey[key]; ok {
		return e
	}
	e := &entry{base: base, mode: mode}
	if mode == modeAuto {
		e.auto = &autoMockState{}
	}
	m.byKey[key] = e
	_ = m.trie.Add(base, e) // fails for a base that differs from a registered one only by a trailing slash; the trie keeps the earlier entry
	return e
}

// Setup registers (or reuses) an unordered scored matcher scope at base and
// returns a new Candidate to configure.
func (m *Mock) Setup(base uri.URI) *Candidate {
	e := m.entryFor(base, modeSetup)
	c := newCandidate()

	e.mu.Lock()
	e.candidates = append(e.candidates, c)
	e.mu.Unlock()
	return c
}

// AutoMock registers (or reuses) an ordered expectation scope at base.
func (m *Mock) AutoMock(base uri.URI) *AutoMockBuilder {
	e := m.entryFor(base, modeAuto)
	return &AutoMockBuilder{state: e.auto}
}

// Deregister removes the mock registered at exactly u (not its descendants).
// Reports whether anything was removed.
func (m *Mock) Deregister(u uri.URI) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := u.SchemeHostPortPath()
	if _, ok := m.byKey[key]; !ok {
		return false
	}
	delete(m.byKey, key)
	m.trie.Remove(u)
	return true
}

// DeregisterAll clears every registration and notifies OnReset subscribers.
func (m *Mock) DeregisterAll() {
	m.mu.Lock()
	m.byKey = make(map[string]*entry)
	m.trie = uri.NewTrie[*entry]()
	callbacks := append([]func(){}, m.onResets...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// ScoreAndNormalize implements registry.Provider: any URI at or beneath a
// registered base scores MaxScore, so mocks always win while active.
func (m *Mock) ScoreAndNormalize(u uri.URI) (int, uri.URI) {
	m.mu.Lock()
	_, ok := m.trie.TryGetValue(u)
	m.mu.Unlock()
	if !ok {
		return 0, u
	}
	return MaxScore, u
}

// Invoke implements registry.Provider.
func (m *Mock) Invoke(ctx context.Context, req *wire.Request, result *async.Result[*wire.Response]) {
	m.mu.Lock()
	match, ok := m.trie.TryGetValue(req.URI)
	m.mu.Unlock()

	if !ok {
		result.Return(&wire.Response{Status: http.StatusOK, Body: wire.EmptyMessage()})
		return
	}

	e := match.Value
	switch e.mode {
	case modeAuto:
		result.Return(e.auto.invoke(req))
	default:
		result.Return(e.invokeSetup(req))
	}
}

// invokeSetup scores every registered candidate and returns the
// highest-scoring one's response, or an empty OK response if none matched.
func (e *entry) invokeSetup(req *wire.Request) *wire.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	var winner *Candidate
	bestScore := 0
	for _, c := range e.candidates {
		score := c.score(req)
		if score > bestScore {
			bestScore = score
			winner = c
		}
	}

	if winner == nil {
		return &wire.Response{Status: http.StatusOK, Body: wire.EmptyMessage()}
	}
	winner.recordCall()
	return winner.response
}

// VerifyAll verifies every verifiable Setup candidate across every
// registered base, deducting elapsed time from the shared timeout budget as
// it goes rather than giving each candidate its own fresh timeout.
func (m *Mock) VerifyAll(timeout time.Duration) map[*Candidate]VerifyResult {
	m.mu.Lock()
	var verifiable []*Candidate
	for _, e := range m.byKey {
		if e.mode != modeSetup {
			continue
		}
		e.mu.Lock()
		for _, c := range e.candidates {
			if c.times != nil {
				verifiable = append(verifiable, c)
			}
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	results := make(map[*Candidate]VerifyResult, len(verifiable))
	remaining := timeout
	for _, c := range verifiable {
		start := time.Now()
		results[c] = c.Verify(remaining)
		remaining -= time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
	}
	return results
}
