// Package plug implements the immutable fluent request builder: an
// addressable endpoint plus accumulated request state (headers, query
// params, cookie jar, credentials, timeout) that dispatches through an
// endpoint registry and returns a Result the caller awaits.
package plug

import (
	"net/http"
	"time"

	"dream/pkg/async"
	"dream/pkg/registry"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

// maxRedirects bounds automatic redirect following.
const maxRedirects = 10

// Credentials is a basic-auth pair attached via WithCredentials.
type Credentials struct {
	Username string
	Password string
}

// Plug is an immutable fluent builder. Every With* / At call returns a new
// Plug; the receiver is never mutated.
type Plug struct {
	registry        *registry.Registry
	pool            *async.Pool
	uri             uri.URI
	headers         http.Header
	cookieJar       *CookieJar
	credentials     *Credentials
	timeout         time.Duration
	followRedirects bool
}

// New creates a Plug rooted at base, dispatching through reg on pool.
func New(reg *registry.Registry, pool *async.Pool, base uri.URI) *Plug {
	return &Plug{registry: reg, pool: pool, uri: base, headers: make(http.Header)}
}

func (p *Plug) clone() *Plug {
	headers := make(http.Header, len(p.headers))
	for k, v := range p.headers {
		headers[k] = append([]string(nil), v...)
	}
	next := *p
	next.headers = headers
	return &next
}

// At navigates to a child path, analogous to URI.At.
func (p *Plug) At(segments ...string) *Plug {
	next := p.clone()
	next.uri = p.uri.At(segments...)
	return next
}

// With appends a query parameter.
func (p *Plug) With(key, value string) *Plug {
	next := p.clone()
	next.uri = p.uri.With(key, value)
	return next
}

// WithHeader sets (replacing any existing values for) a request header.
func (p *Plug) WithHeader(key, value string) *Plug {
	next := p.clone()
	next.headers.Set(key, value)
	return next
}

// WithCookieJar attaches jar; responses dispatched from the result are
// folded back into it, and its contents are replayed as a Cookie header.
func (p *Plug) WithCookieJar(jar *CookieJar) *Plug {
	next := p.clone()
	next.cookieJar = jar
	return next
}

// WithCredentials attaches basic-auth credentials.
func (p *Plug) WithCredentials(username, password string) *Plug {
	next := p.clone()
	next.credentials = &Credentials{Username: username, Password: password}
	return next
}

// WithTimeout attaches a deadline; the dispatched Result fails with
// async.ErrTimeout if it lapses before the winning endpoint completes it.
func (p *Plug) WithTimeout(d time.Duration) *Plug {
	next := p.clone()
	next.timeout = d
	return next
}

// WithRedirects opts into following 3xx responses (bounded to 10 hops).
func (p *Plug) WithRedirects() *Plug {
	next := p.clone()
	next.followRedirects = true
	return next
}

func (p *Plug) Get() *async.Result[*wire.Response]    { return p.Invoke(wire.GET, nil) }
func (p *Plug) Head() *async.Result[*wire.Response]   { return p.Invoke(wire.HEAD, nil) }
func (p *Plug) Delete() *async.Result[*wire.Response] { return p.Invoke(wire.DELETE, nil) }

func (p *Plug) Post(body *wire.Message) *async.Result[*wire.Response] {
	return p.Invoke(wire.POST, body)
}

func (p *Plug) Put(body *wire.Message) *async.Result[*wire.Response] {
	return p.Invoke(wire.PUT, body)
}

// Invoke constructs a request from the builder's accumulated state, hands
// it to the endpoint registry, and returns the Result the registry will
// complete. Any non-memoized body is cloned into a memoized form first, so
// that downstream interceptors may safely read it independently.
func (p *Plug) Invoke(verb wire.Verb, body *wire.Message) *async.Result[*wire.Response] {
	outer := async.New[*wire.Response]()
	p.invoke(verb, body.Clone(), 0, outer)
	return outer
}

func (p *Plug) invoke(verb wire.Verb, body *wire.Message, redirectsFollowed int, outer *async.Result[*wire.Response]) {
	var inner *async.Result[*wire.Response]
	if p.timeout > 0 {
		inner = async.NewWithDeadline[*wire.Response](p.timeout)
	} else {
		inner = async.New[*wire.Response]()
	}

	headers := p.requestHeaders()

	if err := p.registry.Dispatch(p.pool, verb, p.uri, headers, body, inner); err != nil {
		outer.Throw(err)
		return
	}

	inner.WhenDone(func(resp *wire.Response) {
		p.onResponse(verb, resp, redirectsFollowed, outer)
	}, func(err error) {
		outer.Throw(err)
	})
}

func (p *Plug) requestHeaders() http.Header {
	headers := make(http.Header, len(p.headers)+2)
	for k, v := range p.headers {
		headers[k] = append([]string(nil), v...)
	}
	if p.cookieJar != nil {
		if c := p.cookieJar.Header(); c != "" {
			headers.Set("Cookie", c)
		}
	}
	if p.credentials != nil {
		req := &http.Request{Header: make(http.Header)}
		req.SetBasicAuth(p.credentials.Username, p.credentials.Password)
		headers.Set("Authorization", req.Header.Get("Authorization"))
	}
	return headers
}

func (p *Plug) onResponse(verb wire.Verb, resp *wire.Response, redirectsFollowed int, outer *async.Result[*wire.Response]) {
	if p.cookieJar != nil && resp.Headers != nil {
		p.cookieJar.Merge(p.uri, resp.Headers)
	}

	if p.followRedirects && isRedirect(resp.Status) && redirectsFollowed < maxRedirects {
		location := resp.Headers.Get("Location")
		if location != "" {
			if next, err := uri.Parse(location); err == nil {
				redirected := p.clone()
				redirected.uri = next
				redirected.invoke(verb, nil, redirectsFollowed+1, outer)
				return
			}
		}
	}

	outer.Return(resp)
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}
