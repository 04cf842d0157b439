// Package transport bridges the net/http wire into the in-process endpoint
// registry: it translates an incoming *http.Request into a wire.Request,
// dispatches it, waits for the Result the registry completes, and writes the
// wire.Response back out. Framework behavior itself lives in pkg/registry,
// pkg/wire, and internal/host; this package is the one place a real TCP
// socket meets those types.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dream/pkg/async"
	"dream/pkg/logging"
	"dream/pkg/registry"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

// DefaultTimeout bounds how long a dispatched request may take to complete
// before the handler gives up and answers 504.
const DefaultTimeout = 30 * time.Second

// Handler adapts net/http to the registry.
type Handler struct {
	Registry *registry.Registry
	Pool     *async.Pool
	Timeout  time.Duration
}

// NewHandler returns a Handler with DefaultTimeout.
func NewHandler(reg *registry.Registry, pool *async.Pool) *Handler {
	return &Handler{Registry: reg, Pool: pool, Timeout: DefaultTimeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u, err := uri.Parse(requestURL(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed request uri: %s", err), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result := async.New[*wire.Response]()
	verb := wire.Verb(r.Method)
	if err := h.Registry.Dispatch(h.Pool, verb, u, r.Header.Clone(), wire.NewMessage(r.Header.Get("Content-Type"), body), result); err != nil {
		logging.Warn("Transport", "no endpoint for %s %s: %s", verb, u.String(), err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	resp, err := result.Wait(ctx)
	if err != nil {
		logging.Warn("Transport", "dispatch of %s %s failed: %s", verb, u.String(), err)
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *wire.Response) {
	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != nil {
		_, _ = w.Write(resp.Body.Bytes())
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
}
