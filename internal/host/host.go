package host

import (
	"context"
	"net/http"
	"sync"

	"dream/pkg/async"
	"dream/pkg/logging"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

type mountedService struct {
	service  Service
	base     uri.URI
	features *FeatureTable
}

// Host is a URI-namespace mount table of services. It implements
// registry.Provider itself, so mounting a Host into the endpoint registry
// makes every feature of every mounted service reachable through ordinary
// dispatch, without registering each service individually.
type Host struct {
	mu         sync.RWMutex
	apiKey     string
	mounts     map[string]*mountedService
	mountOrder []string
	trie       *uri.Trie[*mountedService]
	loader     Loader
}

// New returns a Host. An empty apiKey disables administrative gating:
// Mount and Unmount accept any caller.
func New(apiKey string) *Host {
	return &Host{
		apiKey: apiKey,
		mounts: make(map[string]*mountedService),
		trie:   uri.NewTrie[*mountedService](),
	}
}

func (h *Host) authorize(apiKey string) error {
	if h.apiKey != "" && apiKey != h.apiKey {
		return ErrUnauthorized
	}
	return nil
}

// Mount attaches svc at base and starts it. Fails with ErrUnauthorized on a
// bad API key, or *DuplicateMountError if something is already mounted at
// exactly base.
func (h *Host) Mount(ctx context.Context, apiKey string, base uri.URI, svc Service) error {
	h.mu.Lock()
	if err := h.authorize(apiKey); err != nil {
		h.mu.Unlock()
		return err
	}

	key := base.SchemeHostPortPath()
	if _, exists := h.mounts[key]; exists {
		h.mu.Unlock()
		return &DuplicateMountError{URI: base.String()}
	}

	ms := &mountedService{service: svc, base: base, features: svc.Features()}
	if err := h.trie.Add(base, ms); err != nil {
		h.mu.Unlock()
		return err
	}
	h.mounts[key] = ms
	h.mountOrder = append(h.mountOrder, key)
	h.mu.Unlock()

	logging.Info("Host", "mounting %s at %s", svc.Name(), base.String())
	if err := svc.Start(ctx); err != nil {
		h.mu.Lock()
		delete(h.mounts, key)
		h.trie.Remove(base)
		h.removeFromOrderLocked(key)
		h.mu.Unlock()
		return err
	}
	return nil
}

// Unmount stops and detaches the service mounted at exactly base. Fails with
// ErrUnauthorized on a bad API key, or *NotMountedError if nothing is
// mounted there.
func (h *Host) Unmount(ctx context.Context, apiKey string, base uri.URI) error {
	h.mu.Lock()
	if err := h.authorize(apiKey); err != nil {
		h.mu.Unlock()
		return err
	}

	key := base.SchemeHostPortPath()
	ms, exists := h.mounts[key]
	if !exists {
		h.mu.Unlock()
		return &NotMountedError{URI: base.String()}
	}
	delete(h.mounts, key)
	h.trie.Remove(base)
	h.removeFromOrderLocked(key)
	h.mu.Unlock()

	logging.Info("Host", "unmounting %s from %s", ms.service.Name(), base.String())
	return ms.service.Stop(ctx)
}

func (h *Host) removeFromOrderLocked(key string) {
	for i, k := range h.mountOrder {
		if k == key {
			h.mountOrder = append(h.mountOrder[:i], h.mountOrder[i+1:]...)
			return
		}
	}
}

// Close stops every mounted service in reverse mount order, continuing past
// individual failures and returning the first one encountered.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	order := append([]string(nil), h.mountOrder...)
	services := make([]Service, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		services = append(services, h.mounts[order[i]].service)
	}
	h.mounts = make(map[string]*mountedService)
	h.mountOrder = nil
	h.trie = uri.NewTrie[*mountedService]()
	h.mu.Unlock()

	var firstErr error
	for _, svc := range services {
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// adminScore outscores any ordinary mount so the administrative routes
// (/services, /load) can never be shadowed by a deeply-nested mount.
const adminScore = 1 << 30

// ScoreAndNormalize implements registry.Provider: the reserved administrative
// paths always score adminScore; otherwise u scores positively when it falls
// at or beneath some mounted base, more deeply nested mounts scoring higher
// so the most specific mount wins.
func (h *Host) ScoreAndNormalize(u uri.URI) (int, uri.URI) {
	if isAdminPath(u) {
		return adminScore, u
	}

	h.mu.RLock()
	match, ok := h.trie.TryGetValue(u)
	h.mu.RUnlock()
	if !ok {
		return 0, u
	}
	return 10 * (match.Depth + 1), u
}

// Invoke implements registry.Provider: administrative routes (mount, unmount,
// load) are handled directly; otherwise it resolves req.URI to a mounted
// service, then to a feature within that service's table, and calls its
// handler. A URI beneath a mount with no matching feature, or beneath no
// mount at all, yields 404.
func (h *Host) Invoke(ctx context.Context, req *wire.Request, result *async.Result[*wire.Response]) {
	if handle, ok := h.adminHandler(req); ok {
		result.Return(handle(ctx))
		return
	}

	h.mu.RLock()
	match, ok := h.trie.TryGetValue(req.URI)
	h.mu.RUnlock()
	if !ok {
		result.Return(&wire.Response{Status: http.StatusNotFound, Body: wire.EmptyMessage()})
		return
	}

	ms := match.Value
	baseSegs := ms.base.Segments()
	allSegs := req.URI.Segments()
	remaining := allSegs[len(baseSegs):]

	feature, params, ok := ms.features.Match(string(req.Verb), remaining)
	if !ok {
		result.Return(&wire.Response{Status: http.StatusNotFound, Body: wire.EmptyMessage()})
		return
	}
	result.Return(feature.Handler(req, params))
}
