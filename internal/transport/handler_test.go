package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dream/pkg/async"
	"dream/pkg/registry"
	"dream/pkg/uri"
	"dream/pkg/wire"
)

type stubProvider struct {
	score int
	fn    func(req *wire.Request, result *async.Result[*wire.Response])
}

func (p *stubProvider) ScoreAndNormalize(u uri.URI) (int, uri.URI) { return p.score, u }

func (p *stubProvider) Invoke(ctx context.Context, req *wire.Request, result *async.Result[*wire.Response]) {
	p.fn(req, result)
}

func TestHandler_DispatchesAndWritesResponse(t *testing.T) {
	reg := registry.New()
	reg.AddEndpoint(&stubProvider{score: 10, fn: func(req *wire.Request, result *async.Result[*wire.Response]) {
		result.Return(&wire.Response{Status: http.StatusCreated, Body: wire.NewMessage("text/plain", []byte("hi"))})
	}})

	h := NewHandler(reg, async.NewPool(4))
	req := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "hi", rec.Body.String())
}

func TestHandler_NoEndpointYields404(t *testing.T) {
	reg := registry.New()
	h := NewHandler(reg, async.NewPool(4))
	req := httptest.NewRequest(http.MethodGet, "http://example.com/nothing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
