package mock

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"dream/pkg/uri"
	"dream/pkg/wire"
)

// QueryPredicate inspects the request URI's query values and reports a match.
type QueryPredicate func(query map[string][]string) bool

// HeaderPredicate inspects the request headers and reports a match.
type HeaderPredicate func(headers http.Header) bool

// BodyPredicate inspects the raw request body and reports a match.
type BodyPredicate func(body []byte) bool

// Candidate is one registered matcher under a Setup base. Every With*
// method mutates the candidate in place and returns it for chaining; unlike
// Plug, a Candidate is a stateful registration object, not an immutable
// value builder.
type Candidate struct {
	verb                   string
	trailingSlashSensitive bool
	wantTrailingSlash      bool

	literalQuery     map[string]string
	queryPredicates  []QueryPredicate
	literalHeaders   map[string]string
	headerPredicates []HeaderPredicate
	bodyPredicate    BodyPredicate
	literalDocument  []byte
	hasLiteralDoc    bool

	response *wire.Response

	mu      sync.Mutex
	count   int
	times   *Times
	calledC chan struct{}
}

func newCandidate() *Candidate {
	return &Candidate{
		literalQuery:   make(map[string]string),
		literalHeaders: make(map[string]string),
		response:       &wire.Response{Status: http.StatusOK, Body: wire.EmptyMessage()},
		calledC:        make(chan struct{}),
	}
}

// Verb restricts matches to v ("*" matches any, which is also the default).
func (c *Candidate) Verb(v string) *Candidate {
	c.verb = v
	return c
}

// WithTrailingSlash requires the request's trailing-slash flag to equal want.
func (c *Candidate) WithTrailingSlash(want bool) *Candidate {
	c.trailingSlashSensitive = true
	c.wantTrailingSlash = want
	return c
}

// Query requires the request's query to contain key=value.
func (c *Candidate) Query(key, value string) *Candidate {
	c.literalQuery[key] = value
	return c
}

// QueryPredicate adds a custom query-matching predicate.
func (c *Candidate) QueryPredicate(fn QueryPredicate) *Candidate {
	c.queryPredicates = append(c.queryPredicates, fn)
	return c
}

// Header requires the request to carry header key set to value.
func (c *Candidate) Header(key, value string) *Candidate {
	c.literalHeaders[key] = value
	return c
}

// HeaderPredicate adds a custom header-matching predicate.
func (c *Candidate) HeaderPredicate(fn HeaderPredicate) *Candidate {
	c.headerPredicates = append(c.headerPredicates, fn)
	return c
}

// Body adds a custom body-matching predicate.
func (c *Candidate) Body(fn BodyPredicate) *Candidate {
	c.bodyPredicate = fn
	return c
}

// Document requires the request body to equal doc exactly.
func (c *Candidate) Document(doc []byte) *Candidate {
	c.literalDocument = doc
	c.hasLiteralDoc = true
	return c
}

// RespondWith sets the response returned on a match.
func (c *Candidate) RespondWith(resp *wire.Response) *Candidate {
	c.response = resp
	return c
}

// VerifiableWith attaches a Times expectation, making the candidate eligible
// for Verify/VerifyAll.
func (c *Candidate) VerifiableWith(t *Times) *Candidate {
	c.times = t
	return c
}

// score computes the additive match score described by the unordered Setup
// matching rule. Any ordinary matcher returning false short-circuits to 0;
// the one documented exception is a literal document set against a
// bodyless request, which contributes 0 to the score without rejecting the
// candidate outright.
func (c *Candidate) score(req *wire.Request) int {
	score := 0

	if c.verb != "" && c.verb != "*" && string(req.Verb) != c.verb {
		return 0
	}
	score++

	if c.trailingSlashSensitive && req.URI.HasTrailingSlash() != c.wantTrailingSlash {
		return 0
	}
	score++

	for key, want := range c.literalQuery {
		if !queryHasValue(req.URI.Query(), key, want) {
			return 0
		}
		score++
	}

	for _, pred := range c.queryPredicates {
		values := queryAsMap(req.URI.Query())
		if !pred(values) {
			return 0
		}
		score++
	}

	for key, want := range c.literalHeaders {
		if req.Headers == nil || req.Headers.Get(key) != want {
			return 0
		}
		score++
	}

	for _, pred := range c.headerPredicates {
		if !pred(req.Headers) {
			return 0
		}
		score++
	}

	if c.bodyPredicate != nil {
		if !c.bodyPredicate(req.Body.Bytes()) {
			return 0
		}
		score++
	}

	if c.hasLiteralDoc {
		if req.Body == nil {
			// literal document set but request carries none: no contribution
		} else if bytes.Equal(req.Body.Bytes(), c.literalDocument) {
			score++
		} else {
			return 0
		}
	}

	return score
}

func (c *Candidate) recordCall() {
	c.mu.Lock()
	c.count++
	ch := c.calledC
	c.calledC = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

// Count returns the number of times this candidate has matched.
func (c *Candidate) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitCalled blocks until the candidate next matches a request, or timeout
// elapses. It signals the candidate's "called" event rather than polling
// its counter.
func (c *Candidate) WaitCalled(timeout time.Duration) bool {
	c.mu.Lock()
	ch := c.calledC
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Verify blocks until the candidate's Times rule is satisfied or timeout
// elapses, whichever comes first. A candidate with no Times attached always
// reports Ok.
func (c *Candidate) Verify(timeout time.Duration) VerifyResult {
	if c.times == nil {
		return Ok
	}
	return verifyWithin(timeout, func() (satisfied, exceeded bool, count int) {
		count = c.Count()
		return c.times.satisfied(count), c.times.exceeded(count), count
	})
}

func verifyWithin(timeout time.Duration, check func() (satisfied, exceeded bool, count int)) VerifyResult {
	deadline := time.Now().Add(timeout)
	for {
		satisfied, exceeded, _ := check()
		if exceeded {
			return TooMany
		}
		if satisfied {
			return Ok
		}
		if time.Now().After(deadline) {
			return TooFew
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// queryHasValue reports whether params contains key with a value either
// exactly equal to want or ending with it ("ends-with" semantics).
func queryHasValue(params []uri.Param, key, want string) bool {
	for _, p := range params {
		if p.Key != key {
			continue
		}
		if p.Value == want || strings.HasSuffix(p.Value, want) {
			return true
		}
	}
	return false
}

func queryAsMap(params []uri.Param) map[string][]string {
	out := make(map[string][]string)
	for _, p := range params {
		out[p.Key] = append(out[p.Key], p.Value)
	}
	return out
}
