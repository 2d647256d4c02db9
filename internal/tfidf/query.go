package tfidf

import (
	"math"
	"sort"
)

const (
	DefaultLimit    = 10
	DefaultMinScore = 0.01
)

// SearchOptions bounds a query. A Limit of 0 means DefaultLimit.
type SearchOptions struct {
	Limit    int
	MinScore float64
}

// SearchResult is one ranked document.
type SearchResult struct {
	URI   string  `json:"uri"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
	// Snippet is left empty here; callers attach content when asked to.
	Snippet string `json:"snippet,omitempty"`
}

// Searcher ranks a Corpus against queries using the tokenizer that built it.
type Searcher struct {
	tok *Tokenizer
}

// NewSearcher uses tok, or a default tokenizer when nil. Queries must use
// the tokenizer the corpus was built with.
func NewSearcher(tok *Tokenizer) *Searcher {
	if tok == nil {
		tok = NewTokenizer(TokenizerOptions{})
	}
	return &Searcher{tok: tok}
}

// Search scores every document with non-zero magnitude against query and
// returns those with score > 0 and score >= MinScore, best first. Equal
// scores keep corpus order. Query terms missing from the IDF table weigh
// nothing. A nil or empty corpus yields an empty, non-nil slice.
func (s *Searcher) Search(c *Corpus, query string, opts SearchOptions) []SearchResult {
	results := []SearchResult{}
	if c.Len() == 0 {
		return results
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	qvec, qmag := s.queryVector(query, c.idf)
	if qmag == 0 {
		return results
	}

	for _, d := range c.docs {
		score := cosine(qvec, qmag, d, c.idf)
		if score <= 0 || score < opts.MinScore {
			continue
		}
		results = append(results, SearchResult{URI: d.URI, Path: d.Path, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// queryVector weights query terms by qtf*idf using the stored table.
func (s *Searcher) queryVector(query string, idf IDFTable) (map[string]float64, float64) {
	qtf := make(map[string]int)
	for _, t := range s.tok.Tokenize(query) {
		qtf[t]++
	}

	vec := make(map[string]float64, len(qtf))
	var sum float64
	for t, f := range qtf {
		w := float64(f) * idf[t]
		if w == 0 {
			continue
		}
		vec[t] = w
		sum += w * w
	}
	return vec, math.Sqrt(sum)
}

// cosine is 0 whenever either magnitude is 0 and is clamped to [0, 1].
func cosine(qvec map[string]float64, qmag float64, d *Document, idf IDFTable) float64 {
	if qmag == 0 || d.Magnitude == 0 {
		return 0
	}
	var dot float64
	for t, qw := range qvec {
		if f, ok := d.TermFrequencies[t]; ok {
			dot += qw * float64(f) * idf[t]
		}
	}
	score := dot / (qmag * d.Magnitude)
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
