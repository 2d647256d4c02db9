// Package validation checks search quality against a data-driven query
// set. Each query names the files that must appear in its top results, so
// ranking regressions show up as failed queries rather than anecdotes.
//
// Query sets are YAML:
//
//	tier1:
//	  - id: T1-1
//	    name: config loader
//	    query: load project config
//	    expected: [internal/config/]
//	negative:
//	  - id: N-1
//	    query: zzqx vorpal
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// Modes a query can run in.
const (
	ModeKeyword  = "keyword"
	ModeSemantic = "semantic"
)

// DefaultLimit is how deep a query's results are searched for a match.
const DefaultLimit = 10

// QuerySpec is one query and the paths that should answer it.
type QuerySpec struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name,omitempty"`
	Query string `yaml:"query" json:"query"`
	// Mode is keyword (default) or semantic.
	Mode string `yaml:"mode" json:"mode,omitempty"`
	// Expected holds paths or path prefixes; any one in the results passes.
	Expected []string `yaml:"expected" json:"expected,omitempty"`
	Notes    string   `yaml:"notes" json:"-"`
	Tier     int      `yaml:"-" json:"tier"`
}

// QuerySet is a parsed query file. Negative queries pass when they return
// nothing.
type QuerySet struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads and checks a query file.
func LoadQueries(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	var qs QuerySet
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	for tier, specs := range map[int][]QuerySpec{1: qs.Tier1, 2: qs.Tier2, 0: qs.Negative} {
		for i := range specs {
			s := &specs[i]
			s.Tier = tier
			if strings.TrimSpace(s.Query) == "" {
				return nil, fmt.Errorf("query %q has no query text", s.ID)
			}
			switch s.Mode {
			case "":
				s.Mode = ModeKeyword
			case ModeKeyword, ModeSemantic:
			default:
				return nil, fmt.Errorf("query %q: unknown mode %q", s.ID, s.Mode)
			}
			if tier != 0 && len(s.Expected) == 0 {
				return nil, fmt.Errorf("query %q has no expected paths", s.ID)
			}
		}
	}
	return &qs, nil
}

// Searcher is the part of the engine a Validator needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
	SearchSemantic(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	// MatchedAt is the 0-based rank of the first expected path, or -1.
	MatchedAt int    `json:"matched_at"`
	Error     string `json:"error,omitempty"`
}

// TierSummary counts passes in one tier.
type TierSummary struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// Report is a full run.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Results   []QueryResult `json:"results"`
	Tier1     TierSummary   `json:"tier1"`
	Tier2     TierSummary   `json:"tier2"`
	Negative  TierSummary   `json:"negative"`
}

// Failed reports whether a tier 1 or negative query failed. Tier 2
// queries are aspirational.
func (r *Report) Failed() bool {
	return r.Tier1.Passed < r.Tier1.Total || r.Negative.Passed < r.Negative.Total
}

// Validator runs query sets against a searcher.
type Validator struct {
	searcher Searcher
	limit    int
}

// New returns a Validator; limit <= 0 means DefaultLimit.
func New(s Searcher, limit int) *Validator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Validator{searcher: s, limit: limit}
}

// RunQuery executes one query.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) QueryResult {
	res := QueryResult{Spec: spec, MatchedAt: -1}

	search := v.searcher.Search
	if spec.Mode == ModeSemantic {
		search = v.searcher.SearchSemantic
	}
	start := time.Now()
	resp, err := search(ctx, spec.Query, index.SearchOptions{Limit: v.limit})
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.TopResults = make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		res.TopResults = append(res.TopResults, r.Path)
	}

	if spec.Tier == 0 {
		res.Passed = len(res.TopResults) == 0
		return res
	}
	res.MatchedAt = firstMatch(res.TopResults, spec.Expected)
	res.Passed = res.MatchedAt >= 0
	return res
}

// RunAll executes every query in qs, tier 1 first.
func (v *Validator) RunAll(ctx context.Context, qs *QuerySet) *Report {
	rep := &Report{Timestamp: time.Now()}
	run := func(specs []QuerySpec, sum *TierSummary) {
		for _, spec := range specs {
			if ctx.Err() != nil {
				return
			}
			r := v.RunQuery(ctx, spec)
			rep.Results = append(rep.Results, r)
			sum.Total++
			if r.Passed {
				sum.Passed++
			}
		}
	}
	run(qs.Tier1, &rep.Tier1)
	run(qs.Tier2, &rep.Tier2)
	run(qs.Negative, &rep.Negative)
	return rep
}

// firstMatch returns the rank of the first path equal to or under an
// expected entry.
func firstMatch(paths, expected []string) int {
	for i, p := range paths {
		for _, e := range expected {
			if p == e || (strings.HasSuffix(e, "/") && strings.HasPrefix(p, e)) {
				return i
			}
		}
	}
	return -1
}
