package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_KeepsNewestInOrder(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
}

func TestCircularBuffer_PartiallyFilled(t *testing.T) {
	buf := NewCircularBuffer[int](0)
	buf.Add(1)
	buf.Add(2)

	assert.Equal(t, []int{1, 2}, buf.Items())
	assert.Empty(t, NewCircularBuffer[int](4).Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"error", "handler"}, ExtractTerms("  Error of HANDLER "))
	assert.Nil(t, ExtractTerms(""))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a collector and a mix of queries
	m := NewQueryMetrics(DefaultQueryMetricsConfig())
	m.Record(QueryEvent{Query: "error handling", QueryType: QueryTypeKeyword, ResultCount: 3, Latency: 2 * time.Millisecond})
	m.Record(QueryEvent{Query: "error retry", QueryType: QueryTypeKeyword, ResultCount: 0, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "zebra", QueryType: QueryTypeSemantic, ResultCount: 0, Latency: time.Second})

	// When: summarising
	s := m.Summary()

	// Then: totals, types, terms, misses and latencies add up
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.QueryTypeCounts[QueryTypeKeyword])
	assert.Equal(t, int64(1), s.QueryTypeCounts[QueryTypeSemantic])
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "error", Count: 2}, s.TopTerms[0])
	assert.Equal(t, []string{"error retry", "zebra"}, s.ZeroResultQueries)
	assert.Equal(t, int64(2), s.ZeroResultCount)
	assert.InDelta(t, 66.67, s.ZeroResultPercentage(), 0.01)
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP1000])
}

func TestQueryMetrics_UsesIndexTerms(t *testing.T) {
	// Given: events carrying tokenizer output and vocabulary misses
	m := NewQueryMetrics(DefaultQueryMetricsConfig())
	m.Record(QueryEvent{Query: "parseHTTP go", Terms: []string{"parsehttp", "parse", "http", "http"}, Unknown: []string{"parsehttp"}})
	m.Record(QueryEvent{Query: "parseHTTP", Terms: []string{"parsehttp"}, Unknown: []string{"parsehttp"}})

	// When: summarising
	s := m.Summary()

	// Then: supplied terms replace whitespace splitting, counted once per query
	assert.Equal(t, []TermCount{{"parsehttp", 2}, {"http", 1}, {"parse", 1}}, s.TopTerms)
	assert.Equal(t, []TermCount{{"parsehttp", 2}}, s.TopUnknownTerms)
}

func TestQueryMetrics_TopTermsEvictLeastRecent(t *testing.T) {
	m := NewQueryMetrics(QueryMetricsConfig{TopTermsCapacity: 2})

	m.Record(QueryEvent{Query: "alpha"})
	m.Record(QueryEvent{Query: "beta"})
	m.Record(QueryEvent{Query: "gamma"})

	terms := m.Summary().TopTerms
	require.Len(t, terms, 2)
	assert.Equal(t, "beta", terms[0].Term)
	assert.Equal(t, "gamma", terms[1].Term)
}

func TestQueryMetrics_NilIsNoop(t *testing.T) {
	var m *QueryMetrics
	m.Record(QueryEvent{Query: "anything"})
	assert.Equal(t, int64(0), m.Summary().TotalQueries)
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := NewQueryMetrics(DefaultQueryMetricsConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(QueryEvent{Query: fmt.Sprintf("query %d", i), ResultCount: j % 2})
			}
		}(i)
	}
	wg.Wait()

	s := m.Summary()
	assert.Equal(t, int64(1000), s.TotalQueries)
	assert.Equal(t, int64(500), s.ZeroResultCount)
}
