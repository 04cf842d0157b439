package plug

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"dream/pkg/uri"
)

// cookieKey scopes a jar entry to the (domain, path, name) triple a cookie
// is actually addressed by; a name alone is not unique across domains or
// paths.
type cookieKey struct {
	domain string
	path   string
	name   string
}

type cookieEntry struct {
	cookie    *http.Cookie
	updatedAt time.Time
}

// CookieJar accumulates cookies folded back from responses and replays them
// on subsequent requests made through the same Plug lineage. Entries are
// keyed by (domain, path, name); a later Merge for the same key replaces the
// earlier one.
type CookieJar struct {
	mu      sync.Mutex
	cookies map[cookieKey]*cookieEntry
}

// NewCookieJar returns an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{cookies: make(map[cookieKey]*cookieEntry)}
}

// Merge folds every Set-Cookie header in respHeaders into the jar. A cookie
// whose Set-Cookie attributes omit Domain or Path is scoped to reqURI's host
// or to reqURI's full path (not its parent directory), respectively.
func (j *CookieJar) Merge(reqURI uri.URI, respHeaders http.Header) {
	if respHeaders == nil {
		return
	}
	resp := &http.Response{Header: respHeaders}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}

	defaultDomain := reqURI.Host()
	defaultPath := requestPath(reqURI)
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = defaultDomain
		}
		path := c.Path
		if path == "" {
			path = defaultPath
		}
		key := cookieKey{domain: domain, path: path, name: c.Name}

		if existing, ok := j.cookies[key]; ok && existing.updatedAt.After(now) {
			continue
		}
		j.cookies[key] = &cookieEntry{cookie: c, updatedAt: now}
	}
}

// Header renders the jar's contents as a request Cookie header value, or
// the empty string if the jar holds nothing.
func (j *CookieJar) Header() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.cookies) == 0 {
		return ""
	}
	req := &http.Request{Header: make(http.Header)}
	for _, entry := range j.cookies {
		req.AddCookie(entry.cookie)
	}
	return req.Header.Get("Cookie")
}

// requestPath renders u's path segments as an absolute path string ("/a"),
// used as the default cookie-path scope when a Set-Cookie header omits one.
func requestPath(u uri.URI) string {
	segs := u.Segments()
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}
