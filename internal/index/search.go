package index

import (
	"context"
	"log/slog"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

// Snippet shaping.
const (
	snippetContextLines = 2
	snippetMaxChars     = 400
)

// SearchOptions bound a query. Zero values fall back to the engine's
// configured limit and minimum score.
type SearchOptions struct {
	Limit    int
	MinScore float64
	// IncludeContent attaches the best matching lines of each file.
	IncludeContent bool
}

// SearchResponse is what callers get back from Search and SearchSemantic.
type SearchResponse struct {
	Results []tfidf.SearchResult `json:"results"`
	Total   int                  `json:"total"`
	// Indexed is false when no snapshot has been built yet.
	Indexed bool `json:"indexed"`
}

func (e *Engine) searchOptions(opts SearchOptions) tfidf.SearchOptions {
	so := tfidf.SearchOptions{Limit: opts.Limit, MinScore: opts.MinScore}
	if so.Limit <= 0 {
		so.Limit = e.opts.SearchLimit
	}
	if so.MinScore <= 0 {
		so.MinScore = e.opts.MinScore
	}
	return so
}

// Search ranks the committed corpus against query. It never blocks on a
// running Index: readers see the last published snapshot. An empty query or
// an engine with nothing indexed yields an empty response, not an error.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	start := time.Now()
	corpus := e.corpus.Load()
	resp := &SearchResponse{Results: []tfidf.SearchResult{}, Indexed: corpus != nil}
	if corpus == nil || strings.TrimSpace(query) == "" {
		return resp, nil
	}

	resp.Results = e.searcher.Search(corpus, query, e.searchOptions(opts))
	resp.Total = len(resp.Results)
	if opts.IncludeContent {
		e.attachSnippets(ctx, query, resp.Results)
	}

	e.recordQuery(query, telemetry.QueryTypeKeyword, corpus.IDF(), resp.Total, time.Since(start))
	return resp, nil
}

// SearchSemantic ranks files by embedding similarity. Without an embedder
// or a vector index the response is empty. Scores are cosine similarities
// mapped into [0, 1].
func (e *Engine) SearchSemantic(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	start := time.Now()
	resp := &SearchResponse{Results: []tfidf.SearchResult{}, Indexed: e.corpus.Load() != nil}
	vs := e.vectors.Load()
	if vs == nil || e.queryEmbedder == nil || strings.TrimSpace(query) == "" {
		return resp, nil
	}

	so := e.searchOptions(opts)
	vec, err := e.queryEmbedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := vs.Search(ctx, vec, so.Limit)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "vector search failed", err)
	}
	for _, h := range hits {
		score := float64(h.Score)
		if score < so.MinScore {
			continue
		}
		r := tfidf.SearchResult{URI: h.ID, Path: PathFromURI(h.ID), Score: score}
		if opts.IncludeContent {
			r.Snippet = h.Metadata.Snippet
		}
		resp.Results = append(resp.Results, r)
	}
	resp.Total = len(resp.Results)

	e.recordQuery(query, telemetry.QueryTypeSemantic, e.corpus.Load().IDF(), resp.Total, time.Since(start))
	return resp, nil
}

func (e *Engine) recordQuery(query string, qt telemetry.QueryType, idf tfidf.IDFTable, n int, d time.Duration) {
	e.logger.Debug("search_complete",
		slog.String("query_type", string(qt)),
		slog.Int("results", n),
		slog.Int64("duration_ms", d.Milliseconds()))
	e.opts.Metrics.ObserveSearch(qt, n, d)
	if e.opts.QueryMetrics == nil {
		return
	}
	terms := e.tokenizer.Tokenize(query)
	var unknown []string
	for _, t := range terms {
		if _, ok := idf[t]; !ok {
			unknown = append(unknown, t)
		}
	}
	e.opts.QueryMetrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		Terms:       terms,
		Unknown:     unknown,
		ResultCount: n,
		Latency:     d,
	})
}

// attachSnippets reads content from the store, not the working tree. The
// store can already hold a newer commit than the corpus that scored the
// results; a path missing from it keeps an empty snippet.
func (e *Engine) attachSnippets(ctx context.Context, query string, results []tfidf.SearchResult) {
	terms := make(map[string]struct{})
	for _, t := range e.tokenizer.Tokenize(query) {
		terms[t] = struct{}{}
	}
	for i := range results {
		content, ok, err := e.store.FileContent(ctx, results[i].Path)
		if err != nil {
			e.logger.Warn("snippet lookup failed",
				slog.String("path", results[i].Path),
				slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		results[i].Snippet = e.snippet(content, terms)
	}
}

// snippet returns the lines around the line with the most query terms.
func (e *Engine) snippet(content string, terms map[string]struct{}) string {
	lines := strings.Split(content, "\n")
	best, bestHits := 0, 0
	for i, line := range lines {
		hits := 0
		for _, t := range e.tokenizer.Tokenize(line) {
			if _, ok := terms[t]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}

	from := max(best-snippetContextLines, 0)
	to := min(best+snippetContextLines+1, len(lines))
	s := strings.TrimSpace(strings.Join(lines[from:to], "\n"))
	if len(s) > snippetMaxChars {
		cut := snippetMaxChars
		for cut > 0 && s[cut]&0xC0 == 0x80 {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}
