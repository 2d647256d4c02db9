package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amanidx"

// Metrics holds the Prometheus collectors. All methods are no-ops on a nil
// receiver so components can run without metrics.
type Metrics struct {
	IndexRunsTotal      *prometheus.CounterVec
	IndexRunDuration    prometheus.Histogram
	IndexedDocuments    prometheus.Gauge
	IndexedTerms        prometheus.Gauge
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	EmbeddingRequests   *prometheus.CounterVec
	EmbeddingDuration   *prometheus.HistogramVec
	EmbeddingFallbacks  *prometheus.CounterVec
	EmbeddingCacheTotal *prometheus.CounterVec
	WatchEventsTotal    *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg
// is non-nil. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IndexRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Index runs by outcome (cache_hit, incremental, full, error)",
		}, []string{"outcome"}),
		IndexRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_run_duration_seconds",
			Help:      "Index run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		IndexedDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_documents",
			Help:      "Documents in the served corpus",
		}),
		IndexedTerms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_terms",
			Help:      "Distinct terms in the served IDF table",
		}),
		SearchRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by type and whether anything matched",
		}, []string{"type", "result"}),
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding batch requests",
		}, []string{"model", "status"}),
		EmbeddingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding batch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"model"}),
		EmbeddingFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallback_vectors_total",
			Help:      "Vectors substituted after a failed batch",
		}, []string{"model"}),
		EmbeddingCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		}, []string{"result"}),
		WatchEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Filesystem events seen by the watch scheduler",
		}, []string{"source", "op"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.IndexRunsTotal, m.IndexRunDuration, m.IndexedDocuments, m.IndexedTerms,
			m.SearchRequestsTotal, m.SearchDuration,
			m.EmbeddingRequests, m.EmbeddingDuration, m.EmbeddingFallbacks, m.EmbeddingCacheTotal,
			m.WatchEventsTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration,
		)
	}
	return m
}

// Index outcomes.
const (
	OutcomeCacheHit    = "cache_hit"
	OutcomeIncremental = "incremental"
	OutcomeFull        = "full"
	OutcomeError       = "error"
)

func (m *Metrics) ObserveIndexRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.IndexRunsTotal.WithLabelValues(outcome).Inc()
	m.IndexRunDuration.Observe(d.Seconds())
}

func (m *Metrics) SetCorpusSize(docs, terms int) {
	if m == nil {
		return
	}
	m.IndexedDocuments.Set(float64(docs))
	m.IndexedTerms.Set(float64(terms))
}

func (m *Metrics) ObserveSearch(t QueryType, results int, d time.Duration) {
	if m == nil {
		return
	}
	result := "hit"
	if results == 0 {
		result = "empty"
	}
	m.SearchRequestsTotal.WithLabelValues(string(t), result).Inc()
	m.SearchDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) ObserveEmbedding(model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EmbeddingRequests.WithLabelValues(model, status).Inc()
	m.EmbeddingDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) AddEmbeddingFallbacks(model string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EmbeddingFallbacks.WithLabelValues(model).Add(float64(n))
}

func (m *Metrics) EmbeddingCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		m.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) WatchEvent(source, op string) {
	if m == nil {
		return
	}
	m.WatchEventsTotal.WithLabelValues(source, op).Inc()
}

// Middleware records request count and duration per chi route pattern.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := strconv.Itoa(sw.status)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
