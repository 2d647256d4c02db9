// Package httpapi serves an index engine over a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

// Engine is the part of *index.Engine the API calls.
type Engine interface {
	Index(ctx context.Context, opts index.IndexOptions) (*index.IndexResult, error)
	Search(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
	SearchSemantic(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
	Status() index.Status
	CacheStats(ctx context.Context) (store.CacheStats, error)
	ClearCache(ctx context.Context) error
	FileContent(ctx context.Context, path string) (string, bool, error)
}

// Options configures NewServer.
type Options struct {
	Metrics *telemetry.Metrics
	// Gatherer backs /metrics. Without one the route is not mounted.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
}

// Server holds the router and its dependencies.
type Server struct {
	engine Engine
	opts   Options
	logger *slog.Logger
	router chi.Router
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewServer(engine Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{engine: engine, opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(opts.Metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/search", s.handleSearch)
	r.Post("/index", s.handleIndex)
	r.Get("/status", s.handleStatus)
	r.Get("/cache", s.handleCacheStats)
	r.Delete("/cache", s.handleClearCache)
	r.Get("/files/*", s.handleFile)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during shutdown", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := index.SearchOptions{IncludeContent: parseBool(q.Get("content"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, amerrors.ErrCodeInvalidInput, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, amerrors.ErrCodeInvalidInput, "min_score must be between 0 and 1")
			return
		}
		opts.MinScore = f
	}

	search := s.engine.Search
	if parseBool(q.Get("semantic")) {
		search = s.engine.SearchSemantic
	}
	resp, err := search(r.Context(), q.Get("q"), opts)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type indexRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, amerrors.ErrCodeInvalidInput, "Invalid request body: "+err.Error())
			return
		}
	}
	res, err := s.engine.Index(r.Context(), index.IndexOptions{Force: req.Force})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

type cacheResponse struct {
	Exists    bool       `json:"exists"`
	FileCount int        `json:"file_count"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.CacheStats(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := cacheResponse{Exists: st.Exists, FileCount: st.FileCount}
	if !st.IndexedAt.IsZero() {
		resp.IndexedAt = &st.IndexedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearCache(r.Context()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if rel == "" || strings.Contains(rel, "..") {
		writeError(w, http.StatusBadRequest, amerrors.ErrCodeInvalidInput, "invalid path")
		return
	}
	content, ok, err := s.engine.FileContent(r.Context(), rel)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "file is not indexed: "+rel)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

// writeEngineError maps error codes to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := amerrors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case amerrors.ErrCodeIndexInProgress:
		status = http.StatusConflict
	case amerrors.ErrCodeInvalidInput, amerrors.ErrCodeInvalidQuery:
		status = http.StatusBadRequest
	case amerrors.ErrCodeProviderUnavailable, amerrors.ErrCodeEmbeddingFailed:
		status = http.StatusServiceUnavailable
	case amerrors.ErrCodeProviderTimeout:
		status = http.StatusGatewayTimeout
	}
	if code == "" {
		code = amerrors.ErrCodeInternal
	}
	if status >= 500 {
		s.logger.Error("request failed",
			slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
			slog.String("error", err.Error()))
	}

	msg := err.Error()
	var ae *amerrors.AmanError
	if errors.As(err, &ae) {
		msg = ae.Message
		if ae.Suggestion != "" {
			msg += " " + ae.Suggestion
		}
	}
	writeError(w, status, code, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// jsonRecoverer turns a panic into a JSON 500.
func jsonRecoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered", slog.Any("panic", rvr))
					writeError(w, http.StatusInternalServerError, amerrors.ErrCodeInternal, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one line per request and echoes X-Request-ID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http_request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.Int("response_bytes", ww.BytesWritten()))
		})
	}
}
