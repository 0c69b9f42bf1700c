package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/identity"
)

func fastSessionConfig(baseURL string) SessionConfig {
	return SessionConfig{
		BaseURL:   baseURL,
		Timeout:   2 * time.Second,
		PacingMin: time.Millisecond,
		PacingMax: 2 * time.Millisecond,
	}
}

func testIdentity() identity.Identity {
	return identity.Identity{UserAgent: "test-agent/1.0"}
}

func TestSessionClient_HappyPath(t *testing.T) {
	t.Parallel()

	var pageHits, resultHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			pageHits++
			require.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
			require.Equal(t, "document", r.Header.Get("Sec-Fetch-Dest"))
			require.Equal(t, "sunset", r.URL.Query().Get("q"))
			_, _ = w.Write([]byte(`<html><script>vqd="4-123456789";</script></html>`))
		case "/i.js":
			resultHits++
			require.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
			require.Equal(t, "cors", r.Header.Get("Sec-Fetch-Mode"))
			require.Equal(t, "4-123456789", r.URL.Query().Get("vqd"))
			require.Equal(t, "json", r.URL.Query().Get("o"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []RawResult{
					{Image: "https://cdn.example.com/a.jpg", URL: "https://example.com/a", Title: "a"},
					{Image: "https://cdn.example.com/b.jpg", URL: "https://example.com/b", Title: "b"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	raw, err := c.Search(context.Background(), "sunset", testIdentity())
	require.NoError(t, err)
	require.Len(t, raw, 2)
	require.Equal(t, 1, pageHits)
	require.Equal(t, 1, resultHits)
}

func TestSessionClient_MissingTokenIsSessionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>nothing to see here</html>`))
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	_, err := c.Search(context.Background(), "sunset", testIdentity())

	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
}

func TestSessionClient_PageErrorStatusIsProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	_, err := c.Search(context.Background(), "sunset", testIdentity())

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusForbidden, providerErr.StatusCode)
	require.Equal(t, "page", providerErr.Stage)
}

func TestSessionClient_EmptyResultsIsProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/i.js" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`vqd="4-1";`))
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	_, err := c.Search(context.Background(), "sunset", testIdentity())

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, "results", providerErr.Stage)
}

func TestSessionClient_MalformedJSONIsProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/i.js" {
			_, _ = w.Write([]byte(`{"results": [`))
			return
		}
		_, _ = w.Write([]byte(`vqd="4-1";`))
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	_, err := c.Search(context.Background(), "sunset", testIdentity())

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
}

func TestSessionClient_UnreachableHostIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // deliberately dead

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	_, err := c.Search(context.Background(), "sunset", testIdentity())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, "page", netErr.Stage)
}

func TestSessionClient_TokenNeverReusedAcrossCalls(t *testing.T) {
	t.Parallel()

	tokens := []string{"4-111", "4-222"}
	var pageCalls int
	var seenTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/i.js" {
			seenTokens = append(seenTokens, r.URL.Query().Get("vqd"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []RawResult{{Image: "https://cdn.example.com/a.jpg", URL: "https://example.com/a"}},
			})
			return
		}
		_, _ = w.Write([]byte(`vqd="` + tokens[pageCalls] + `";`))
		pageCalls++
	}))
	defer srv.Close()

	c := NewSessionClient(fastSessionConfig(srv.URL), zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), "sunset", testIdentity())
		require.NoError(t, err)
	}
	require.Equal(t, []string{"4-111", "4-222"}, seenTokens)
}
