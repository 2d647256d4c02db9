package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

// fakeSearcher answers from a fixed table keyed by query.
type fakeSearcher struct {
	keyword  map[string][]string
	semantic map[string][]string
	err      error
	limits   []int
}

func (f *fakeSearcher) respond(table map[string][]string, query string, opts index.SearchOptions) (*index.SearchResponse, error) {
	f.limits = append(f.limits, opts.Limit)
	if f.err != nil {
		return nil, f.err
	}
	resp := &index.SearchResponse{Indexed: true}
	for _, p := range table[query] {
		resp.Results = append(resp.Results, tfidf.SearchResult{Path: p, Score: 0.5})
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

func (f *fakeSearcher) Search(_ context.Context, q string, o index.SearchOptions) (*index.SearchResponse, error) {
	return f.respond(f.keyword, q, o)
}

func (f *fakeSearcher) SearchSemantic(_ context.Context, q string, o index.SearchOptions) (*index.SearchResponse, error) {
	return f.respond(f.semantic, q, o)
}

func writeQueries(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQueries(t *testing.T) {
	path := writeQueries(t, `
tier1:
  - id: T1-1
    name: cats
    query: cat
    expected: [animals/cats.md]
tier2:
  - id: T2-1
    query: feline
    mode: semantic
    expected: [animals/]
negative:
  - id: N-1
    query: zzqx
`)

	qs, err := LoadQueries(path)

	require.NoError(t, err)
	require.Len(t, qs.Tier1, 1)
	assert.Equal(t, 1, qs.Tier1[0].Tier)
	assert.Equal(t, ModeKeyword, qs.Tier1[0].Mode)
	assert.Equal(t, 2, qs.Tier2[0].Tier)
	assert.Equal(t, ModeSemantic, qs.Tier2[0].Mode)
	assert.Equal(t, 0, qs.Negative[0].Tier)
}

func TestLoadQueries_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "tier1: [", "parse"},
		{"empty query", "tier1:\n  - id: a\n    expected: [x]\n", "no query text"},
		{"missing expected", "tier1:\n  - id: a\n    query: cat\n", "no expected paths"},
		{"unknown mode", "tier2:\n  - id: a\n    query: cat\n    mode: fuzzy\n    expected: [x]\n", "unknown mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadQueries(writeQueries(t, tt.content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadQueries_MissingFile(t *testing.T) {
	_, err := LoadQueries(filepath.Join(t.TempDir(), "none.yaml"))

	assert.Error(t, err)
}

func TestValidator_RunQuery(t *testing.T) {
	s := &fakeSearcher{
		keyword: map[string][]string{
			"cat": {"animals/birds.md", "animals/cats.md"},
		},
		semantic: map[string][]string{
			"feline": {"animals/cats.md"},
		},
	}
	v := New(s, 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		spec       QuerySpec
		wantPassed bool
		wantAt     int
	}{
		{"exact path at rank 2", QuerySpec{Query: "cat", Tier: 1, Expected: []string{"animals/cats.md"}}, true, 1},
		{"directory prefix", QuerySpec{Query: "cat", Tier: 1, Expected: []string{"animals/"}}, true, 0},
		{"prefix without slash is exact", QuerySpec{Query: "cat", Tier: 1, Expected: []string{"animals"}}, false, -1},
		{"missing", QuerySpec{Query: "cat", Tier: 1, Expected: []string{"src/main.go"}}, false, -1},
		{"semantic mode", QuerySpec{Query: "feline", Mode: ModeSemantic, Tier: 2, Expected: []string{"animals/cats.md"}}, true, 0},
		{"negative empty", QuerySpec{Query: "zzqx", Tier: 0}, true, -1},
		{"negative with hits", QuerySpec{Query: "cat", Tier: 0}, false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.RunQuery(ctx, tt.spec)

			assert.Equal(t, tt.wantPassed, r.Passed)
			assert.Equal(t, tt.wantAt, r.MatchedAt)
			assert.Empty(t, r.Error)
		})
	}
	assert.Equal(t, DefaultLimit, s.limits[0])
}

func TestValidator_RunQueryError(t *testing.T) {
	v := New(&fakeSearcher{err: errors.New("engine closed")}, 5)

	r := v.RunQuery(context.Background(), QuerySpec{Query: "cat", Tier: 0})

	assert.False(t, r.Passed, "errors never pass, even for negative queries")
	assert.Equal(t, "engine closed", r.Error)
}

func TestValidator_RunAll(t *testing.T) {
	// Given: one passing and one failing tier 1 query, a failing tier 2
	// query and a passing negative
	s := &fakeSearcher{keyword: map[string][]string{"cat": {"animals/cats.md"}}}
	qs := &QuerySet{
		Tier1: []QuerySpec{
			{ID: "a", Query: "cat", Tier: 1, Expected: []string{"animals/cats.md"}},
			{ID: "b", Query: "dog", Tier: 1, Expected: []string{"animals/dogs.md"}},
		},
		Tier2:    []QuerySpec{{ID: "c", Query: "bird", Tier: 2, Expected: []string{"animals/birds.md"}}},
		Negative: []QuerySpec{{ID: "n", Query: "zzqx"}},
	}

	// When
	rep := New(s, 3).RunAll(context.Background(), qs)

	// Then
	require.Len(t, rep.Results, 4)
	assert.Equal(t, TierSummary{Passed: 1, Total: 2}, rep.Tier1)
	assert.Equal(t, TierSummary{Passed: 0, Total: 1}, rep.Tier2)
	assert.Equal(t, TierSummary{Passed: 1, Total: 1}, rep.Negative)
	assert.True(t, rep.Failed())
	assert.Equal(t, []int{3, 3, 3, 3}, s.limits)
}

func TestReport_FailedIgnoresTier2(t *testing.T) {
	rep := &Report{
		Tier1:    TierSummary{Passed: 2, Total: 2},
		Tier2:    TierSummary{Passed: 0, Total: 3},
		Negative: TierSummary{Passed: 1, Total: 1},
	}

	assert.False(t, rep.Failed())
}
