package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

var corpus = map[string]string{
	"animals/cats.md":  "cat dog cat",
	"animals/birds.md": "dog bird",
	"src/main.go":      "package main\n\nfunc main() {\n\tprintln(\"hello parser\")\n}\n",
}

func newTestServer(t *testing.T, opts Options) (*Server, *index.Engine) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range corpus {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	engine, err := index.New(context.Background(), index.Options{RootDir: root, Metrics: opts.Metrics})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return NewServer(engine, opts), engine
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestIndexThenSearch(t *testing.T) {
	// Given: a fresh engine
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	// When: searching before any index run
	rec := do(t, h, http.MethodGet, "/search?q=cat", "")

	// Then: an empty, not-indexed response
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[index.SearchResponse](t, rec)
	assert.False(t, resp.Indexed)
	assert.Empty(t, resp.Results)

	// When: indexing and searching again
	rec = do(t, h, http.MethodPost, "/index", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[index.IndexResult](t, rec)
	assert.Equal(t, 3, res.Stats.TotalFiles)

	rec = do(t, h, http.MethodGet, "/search?q=cat&content=true", "")

	// Then: cats.md ranks first with a snippet
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[index.SearchResponse](t, rec)
	assert.True(t, resp.Indexed)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "animals/cats.md", resp.Results[0].Path)
	assert.Contains(t, resp.Results[0].Snippet, "cat")
}

func TestIndex_ForceBody(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/index", "").Code)

	rec := do(t, h, http.MethodPost, "/index", `{"force":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[index.IndexResult](t, rec)
	assert.Equal(t, 3, res.Stats.IndexedFiles)
}

func TestIndex_BadBody(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s.Handler(), http.MethodPost, "/index", `{"force":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, decode[ErrorResponse](t, rec).Code)
}

func TestSearch_InvalidParams(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	tests := []struct {
		name   string
		target string
	}{
		{"negative limit", "/search?q=cat&limit=-1"},
		{"non-numeric limit", "/search?q=cat&limit=ten"},
		{"min score above one", "/search?q=cat&min_score=1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStatusAndCache(t *testing.T) {
	// Given: an indexed engine
	s, _ := newTestServer(t, Options{})
	h := s.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/index", "").Code)

	// Then: status and cache report the snapshot
	st := decode[index.Status](t, do(t, h, http.MethodGet, "/status", ""))
	assert.True(t, st.Indexed)
	assert.False(t, st.IsIndexing)

	cache := decode[cacheResponse](t, do(t, h, http.MethodGet, "/cache", ""))
	assert.True(t, cache.Exists)
	assert.Equal(t, 3, cache.FileCount)
	assert.NotNil(t, cache.IndexedAt)

	// When: the cache is cleared
	rec := do(t, h, http.MethodDelete, "/cache", "")

	// Then: nothing is left
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cache = decode[cacheResponse](t, do(t, h, http.MethodGet, "/cache", ""))
	assert.False(t, cache.Exists)
	assert.Nil(t, cache.IndexedAt)
}

func TestFiles(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/index", "").Code)

	rec := do(t, h, http.MethodGet, "/files/animals/cats.md", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cat dog cat", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/files/animals/fish.md", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/files/animals/..%2F..%2Fetc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// busyEngine reports a run in progress for every mutating call.
type busyEngine struct{ Engine }

func (busyEngine) Index(context.Context, index.IndexOptions) (*index.IndexResult, error) {
	return nil, amerrors.ErrIndexInProgress
}
func (busyEngine) ClearCache(context.Context) error { return amerrors.ErrIndexInProgress }

func TestBusyEngine_Conflict(t *testing.T) {
	h := NewServer(busyEngine{}, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/index", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, amerrors.ErrCodeIndexInProgress, decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodDelete, "/cache", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// panicEngine blows up on Status.
type panicEngine struct{ Engine }

func (panicEngine) Status() index.Status { panic("boom") }

func TestRecoverer(t *testing.T) {
	h := NewServer(panicEngine{}, Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, amerrors.ErrCodeInternal, decode[ErrorResponse](t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	// Given: a server with a private registry
	reg := prometheus.NewRegistry()
	s, _ := newTestServer(t, Options{Metrics: telemetry.NewMetrics(reg), Gatherer: reg})
	h := s.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/index", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/search?q=dog", "").Code)

	// When: scraping
	rec := do(t, h, http.MethodGet, "/metrics", "")

	// Then: HTTP and search series are exported
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "amanidx_http_requests_total")
	assert.Contains(t, body, "amanidx_search_duration_seconds")
}

func TestMetricsEndpoint_NotMountedWithoutGatherer(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	assert.NoError(t, <-done)
}
