package host

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"dream/pkg/async"
	"dream/pkg/wire"
)

func invoke(t *testing.T, h *Host, verb wire.Verb, rawURI string, headers http.Header, body []byte) *wire.Response {
	t.Helper()
	req := &wire.Request{Verb: verb, URI: mustParse(t, rawURI), Headers: headers, Body: wire.NewMessage("application/json", body)}
	result := async.New[*wire.Response]()
	h.Invoke(context.Background(), req, result)
	resp, err := result.Wait(context.Background())
	require.NoError(t, err)
	return resp
}

func TestHost_AdminMountCreatesAReachableService(t *testing.T) {
	h := New("secret")
	headers := http.Header{}
	headers.Set(apiKeyHeader, "secret")

	doc := []byte(`{"class":"example","sid":"widgets-1","path":"widgets"}`)
	resp := invoke(t, h, "POST", "http://example.com/services", headers, doc)
	require.Equal(t, http.StatusCreated, resp.Status)

	score, _ := h.ScoreAndNormalize(mustParse(t, "http://example.com/widgets/status"))
	require.Greater(t, score, 0)

	statusResp := invoke(t, h, "GET", "http://example.com/widgets/status", nil, nil)
	require.Equal(t, http.StatusOK, statusResp.Status)
}

func TestHost_AdminMountRejectsWrongAPIKey(t *testing.T) {
	h := New("secret")
	headers := http.Header{}
	headers.Set(apiKeyHeader, "wrong")

	doc := []byte(`{"class":"example","sid":"widgets-1","path":"widgets"}`)
	resp := invoke(t, h, "POST", "http://example.com/services", headers, doc)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestHost_AdminMountRejectsMalformedDocument(t *testing.T) {
	h := New("")
	resp := invoke(t, h, "POST", "http://example.com/services", nil, []byte(`{"class":"example"}`))
	require.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestHost_AdminUnmountStopsService(t *testing.T) {
	h := New("")
	doc := []byte(`{"class":"example","sid":"widgets-1","path":"widgets"}`)
	require.Equal(t, http.StatusCreated, invoke(t, h, "POST", "http://example.com/services", nil, doc).Status)

	resp := invoke(t, h, "DELETE", "http://example.com/services/widgets", nil, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	score, _ := h.ScoreAndNormalize(mustParse(t, "http://example.com/widgets/status"))
	require.Equal(t, 0, score)
}

func TestHost_AdminLoadRequiresLoader(t *testing.T) {
	h := New("")
	resp := invoke(t, h, "POST", "http://example.com/load", nil, []byte(`{"path":"./config"}`))
	require.Equal(t, http.StatusNotImplemented, resp.Status)
}

func TestHost_AdminLoadMountsEveryConfig(t *testing.T) {
	h := New("")
	h.SetLoader(func(dir string) ([]ServiceConfig, error) {
		require.Equal(t, "./config", dir)
		return []ServiceConfig{
			{Class: "example", SID: "a", Path: "a"},
			{Class: "example", SID: "b", Path: "b"},
		}, nil
	})

	resp := invoke(t, h, "POST", "http://example.com/load", nil, []byte(`{"path":"./config"}`))
	require.Equal(t, http.StatusOK, resp.Status)

	for _, path := range []string{"a", "b"} {
		score, _ := h.ScoreAndNormalize(mustParse(t, "http://example.com/"+path+"/status"))
		require.Greater(t, score, 0)
	}
}

func TestHost_AdminPathsOutscoreOrdinaryMounts(t *testing.T) {
	h := New("")
	require.NoError(t, h.Mount(context.Background(), "", mustParse(t, "http://example.com/services"), newStubService("shadow", nil)))

	score, _ := h.ScoreAndNormalize(mustParse(t, "http://example.com/services"))
	require.Equal(t, adminScore, score)
}
