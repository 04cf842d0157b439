package mock

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	strtrunc "dream/pkg/strings"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

// Expectation is one step of an ordered AutoMock sequence.
type Expectation struct {
	verb            string
	path            string
	literalDocument []byte
	hasLiteralDoc   bool
	bodyPredicate   BodyPredicate
	requiredHeaders map[string]string
	response        *wire.Response
}

// NewExpectation creates an Expectation matching verb (or "*" for any) and
// path (or "" for any; compared against the request URI's full path, e.g.
// "/a", not a path relative to the AutoMock base) that responds with resp
// when satisfied.
func NewExpectation(verb, path string, resp *wire.Response) *Expectation {
	return &Expectation{verb: verb, path: path, response: resp, requiredHeaders: make(map[string]string)}
}

// Document requires the request body to equal doc exactly.
func (e *Expectation) Document(doc []byte) *Expectation {
	e.literalDocument = doc
	e.hasLiteralDoc = true
	return e
}

// Body attaches a custom body-matching predicate.
func (e *Expectation) Body(fn BodyPredicate) *Expectation {
	e.bodyPredicate = fn
	return e
}

// Header requires the request to carry header key set to value.
func (e *Expectation) Header(key, value string) *Expectation {
	e.requiredHeaders[key] = value
	return e
}

func (e *Expectation) matches(req *wire.Request) bool {
	if e.verb != "" && e.verb != "*" && string(req.Verb) != e.verb {
		return false
	}
	if e.path != "" && requestPath(req.URI) != normalizePath(e.path) {
		return false
	}
	for key, want := range e.requiredHeaders {
		if req.Headers == nil || req.Headers.Get(key) != want {
			return false
		}
	}
	if e.bodyPredicate != nil && !e.bodyPredicate(req.Body.Bytes()) {
		return false
	}
	if e.hasLiteralDoc && !bytes.Equal(req.Body.Bytes(), e.literalDocument) {
		return false
	}
	return true
}

// autoMockState is the per-base ordered sequence state, guarded by its own
// mutex.
type autoMockState struct {
	mu           sync.Mutex
	expectations []*Expectation
	nextIndex    int
	mismatches   []string
	excess       []*wire.Request
}

// AutoMockBuilder registers expectations for one base URI in order.
type AutoMockBuilder struct {
	state *autoMockState
}

// Expect appends exp to the end of the ordered sequence.
func (b *AutoMockBuilder) Expect(exp *Expectation) *AutoMockBuilder {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	b.state.expectations = append(b.state.expectations, exp)
	return b
}

func (s *autoMockState) invoke(req *wire.Request) *wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextIndex >= len(s.expectations) {
		s.excess = append(s.excess, req)
		return &wire.Response{Status: http.StatusBadRequest, Body: wire.EmptyMessage()}
	}

	exp := s.expectations[s.nextIndex]
	if !exp.matches(req) {
		s.mismatches = append(s.mismatches, mismatchDescription(s.nextIndex, exp, req))
		return &wire.Response{Status: http.StatusBadRequest, Body: wire.EmptyMessage()}
	}

	s.nextIndex++
	return exp.response
}

// requestPath renders u's path segments as an absolute path string ("/a"),
// the same form an Expectation's path is given in.
func requestPath(u uri.URI) string {
	segs := u.Segments()
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

func normalizePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

func mismatchDescription(index int, exp *Expectation, req *wire.Request) string {
	body := strtrunc.TruncateDescription(string(req.Body.Bytes()), strtrunc.DefaultDescriptionMaxLen)
	expectedVerb := exp.verb
	if expectedVerb == "" {
		expectedVerb = "*"
	}
	expectedPath := "*"
	if exp.path != "" {
		expectedPath = normalizePath(exp.path)
	}
	return "expectation #" + strconv.Itoa(index) + ": expected " + expectedVerb + " " + expectedPath +
		", got '" + requestPath(req.URI) + "' body=" + body
}

// Mismatches returns a snapshot of the mismatch descriptions recorded so far.
func (b *AutoMockBuilder) Mismatches() []string {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return append([]string(nil), b.state.mismatches...)
}

// ExcessCalls returns a snapshot of requests that arrived after every
// expectation had already been consumed.
func (b *AutoMockBuilder) ExcessCalls() []*wire.Request {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return append([]*wire.Request(nil), b.state.excess...)
}

// WaitAndVerify blocks until every expectation has been hit or timeout
// elapses, then waits a short grace period (at least 1s, or half the
// elapsed time if longer) to catch late excess calls before reporting
// whether the sequence was hit cleanly with no excess.
func (b *AutoMockBuilder) WaitAndVerify(timeout time.Duration) bool {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		b.state.mu.Lock()
		done := b.state.nextIndex == len(b.state.expectations)
		b.state.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}

	elapsed := time.Since(start)
	grace := elapsed / 2
	if grace < time.Second {
		grace = time.Second
	}
	time.Sleep(grace)

	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return len(b.state.excess) == 0
}
