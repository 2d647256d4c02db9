// Package telemetry records what the engine does: Prometheus collectors for
// index runs, searches and embedding calls, and an in-memory summary of
// recent queries for the status surfaces. Nothing leaves the process except
// through /metrics.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType is the search path a query took.
type QueryType string

const (
	QueryTypeKeyword  QueryType = "keyword"
	QueryTypeSemantic QueryType = "semantic"
)

// LatencyBucket is a coarse latency class used in the status summary.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search. Terms are the tokens the index saw;
// when nil, Record falls back to ExtractTerms. Unknown holds the terms with
// no IDF entry, i.e. words no indexed document contains.
type QueryEvent struct {
	Query       string
	QueryType   QueryType
	Terms       []string
	Unknown     []string
	ResultCount int
	Latency     time.Duration
}

// CircularBuffer keeps the last capacity items.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer falls back to a capacity of 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, 0, b.size)
	start := 0
	if b.size == b.capacity {
		start = b.head
	}
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%b.capacity])
	}
	return out
}

func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lower-cases and splits a query, keeping words of 3+ bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term with how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySummary is a point-in-time copy of QueryMetrics.
type QuerySummary struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	TopUnknownTerms     []TermCount             `json:"top_unknown_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage is 0 when nothing was recorded.
func (s *QuerySummary) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryMetricsConfig sizes the in-memory trackers.
type QueryMetricsConfig struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
}

func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{TopTermsCapacity: 100, ZeroResultsCapacity: 50}
}

// QueryMetrics aggregates recent searches. Safe for concurrent use; a nil
// *QueryMetrics ignores records.
type QueryMetrics struct {
	mu              sync.Mutex
	queryTypes      map[QueryType]int64
	topTerms        *lru.Cache[string, int64]
	unknownTerms    *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	since           time.Time
}

func NewQueryMetrics(cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	unknownTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &QueryMetrics{
		queryTypes:   make(map[QueryType]int64),
		topTerms:     topTerms,
		unknownTerms: unknownTerms,
		zeroResults:  NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:    make(map[LatencyBucket]int64),
		since:        time.Now(),
	}
}

func (m *QueryMetrics) Record(e QueryEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.queryTypes[e.QueryType]++
	m.latencies[LatencyToBucket(e.Latency)]++
	terms := e.Terms
	if terms == nil {
		terms = ExtractTerms(e.Query)
	}
	bump(m.topTerms, terms)
	bump(m.unknownTerms, e.Unknown)
	if e.ResultCount == 0 {
		m.zeroResultCount++
		m.zeroResults.Add(e.Query)
	}
}

// Summary returns top terms by descending count, ties by term.
func (m *QueryMetrics) Summary() QuerySummary {
	if m == nil {
		return QuerySummary{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := QuerySummary{
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		QueryTypeCounts:     make(map[QueryType]int64, len(m.queryTypes)),
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		Since:               m.since,
	}
	for k, v := range m.queryTypes {
		s.QueryTypeCounts[k] = v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}
	s.TopTerms = ranked(m.topTerms)
	s.TopUnknownTerms = ranked(m.unknownTerms)
	return s
}

// bump counts each distinct term once per query.
func bump(c *lru.Cache[string, int64], terms []string) {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		n, _ := c.Get(t)
		c.Add(t, n+1)
	}
}

func ranked(c *lru.Cache[string, int64]) []TermCount {
	var out []TermCount
	for _, term := range c.Keys() {
		if n, ok := c.Peek(term); ok {
			out = append(out, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}
