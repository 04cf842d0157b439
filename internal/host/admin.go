package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dream/pkg/uri"
	"dream/pkg/wire"
)

// Loader loads service configuration documents from dir, for the /load
// administrative endpoint. Set with SetLoader by whatever wires the host to
// a concrete configuration source (internal/config cannot be imported here
// directly: it already imports this package for ServiceConfig). A Host with
// no Loader set answers /load with 501.
type Loader func(dir string) ([]ServiceConfig, error)

// SetLoader installs the loader /load uses to discover configuration
// documents to mount.
func (h *Host) SetLoader(l Loader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loader = l
}

const apiKeyHeader = "X-Api-Key"

func requestAPIKey(req *wire.Request) string {
	if req.Headers == nil {
		return ""
	}
	return req.Headers.Get(apiKeyHeader)
}

// isAdminPath reports whether u addresses one of the host's built-in
// administrative routes: /services, /services/{path...}, or /load. These
// are reserved; ScoreAndNormalize answers them ahead of any mounted service
// so a mount cannot accidentally shadow the administrative surface.
func isAdminPath(u uri.URI) bool {
	segs := u.Segments()
	if len(segs) == 1 && (segs[0] == "services" || segs[0] == "load") {
		return true
	}
	return len(segs) >= 2 && segs[0] == "services"
}

// adminHandler resolves req against the administrative routes, returning a
// function that executes the matched route, or false if req addresses none
// of them. Kept separate from FeatureTable because these routes need a
// context.Context the HandlerFunc signature mounted services use does not
// carry.
func (h *Host) adminHandler(req *wire.Request) (func(ctx context.Context) *wire.Response, bool) {
	segs := req.URI.Segments()
	verb := string(req.Verb)

	switch {
	case verb == "POST" && len(segs) == 1 && segs[0] == "services":
		return func(ctx context.Context) *wire.Response { return h.handleMount(ctx, req) }, true
	case verb == "DELETE" && len(segs) >= 2 && segs[0] == "services":
		path := strings.Join(segs[1:], "/")
		return func(ctx context.Context) *wire.Response { return h.handleUnmount(ctx, req, path) }, true
	case verb == "POST" && len(segs) == 1 && segs[0] == "load":
		return func(ctx context.Context) *wire.Response { return h.handleLoad(ctx, req) }, true
	}
	return nil, false
}

func (h *Host) handleMount(ctx context.Context, req *wire.Request) *wire.Response {
	var cfg ServiceConfig
	if err := json.Unmarshal(req.Body.Bytes(), &cfg); err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("malformed service configuration: %w", err))
	}
	if msg := ValidateServiceConfig(cfg); msg != "" {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("%s", msg))
	}

	base, err := adminRelativeURI(req.URI, cfg.Path)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	if err := h.Mount(ctx, requestAPIKey(req), base, NewConfiguredService(cfg)); err != nil {
		return mountErrorResponse(err)
	}
	return &wire.Response{Status: http.StatusCreated, Body: wire.EmptyMessage()}
}

func (h *Host) handleUnmount(ctx context.Context, req *wire.Request, path string) *wire.Response {
	base, err := adminRelativeURI(req.URI, path)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}
	if err := h.Unmount(ctx, requestAPIKey(req), base); err != nil {
		return mountErrorResponse(err)
	}
	return &wire.Response{Status: http.StatusOK, Body: wire.EmptyMessage()}
}

type loadRequest struct {
	Path string `json:"path"`
}

type loadResult struct {
	Mounted int      `json:"mounted"`
	Skipped []string `json:"skipped,omitempty"`
}

// handleLoad loads every service configuration document found under the
// requested path via the installed Loader and mounts each one, continuing
// past individual failures; the response reports how many mounted and which
// configs (by sid) were skipped.
func (h *Host) handleLoad(ctx context.Context, req *wire.Request) *wire.Response {
	h.mu.RLock()
	loader := h.loader
	h.mu.RUnlock()
	if loader == nil {
		return errorResponse(http.StatusNotImplemented, fmt.Errorf("host: no loader configured"))
	}

	var body loadRequest
	if err := json.Unmarshal(req.Body.Bytes(), &body); err != nil || body.Path == "" {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("load requires a json body with a non-empty path"))
	}

	configs, err := loader(body.Path)
	if err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("load from %s: %w", body.Path, err))
	}

	result := loadResult{}
	apiKey := requestAPIKey(req)
	for _, cfg := range configs {
		base, uerr := adminRelativeURI(req.URI, cfg.Path)
		if uerr != nil {
			result.Skipped = append(result.Skipped, cfg.SID)
			continue
		}
		if merr := h.Mount(ctx, apiKey, base, NewConfiguredService(cfg)); merr != nil {
			result.Skipped = append(result.Skipped, cfg.SID)
			continue
		}
		result.Mounted++
	}

	payload, _ := json.Marshal(result)
	return &wire.Response{Status: http.StatusOK, Body: wire.NewMessage("application/json", payload)}
}

func errorResponse(status int, err error) *wire.Response {
	return &wire.Response{Status: status, Body: wire.NewMessage("text/plain", []byte(err.Error()))}
}

func mountErrorResponse(err error) *wire.Response {
	switch err.(type) {
	case *DuplicateMountError:
		return errorResponse(http.StatusConflict, err)
	case *NotMountedError:
		return errorResponse(http.StatusNotFound, err)
	}
	if err == ErrUnauthorized {
		return errorResponse(http.StatusUnauthorized, err)
	}
	return errorResponse(http.StatusBadRequest, err)
}

// adminRelativeURI builds the URI a service's configured path addresses,
// relative to the same scheme/host/port the administrative request itself
// arrived on.
func adminRelativeURI(root uri.URI, path string) (uri.URI, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return uri.URI{}, fmt.Errorf("service path must not be empty")
	}
	raw := fmt.Sprintf("%s://%s:%d/%s", root.Scheme(), root.Host(), root.Port(), path)
	return uri.Parse(raw)
}
