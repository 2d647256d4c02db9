package mcp

import "github.com/Aman-CERP/amanidx/internal/index"

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query          string  `json:"query" jsonschema:"the search query to execute"`
	Limit          int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, at most 50"`
	MinScore       float64 `json:"min_score,omitempty" jsonschema:"drop results scoring below this value (0-1), default 0.01"`
	IncludeContent bool    `json:"include_content,omitempty" jsonschema:"attach the best matching lines of each file"`
	Semantic       bool    `json:"semantic,omitempty" jsonschema:"rank by embedding similarity instead of keywords; needs an embedder"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked matches, best first"`
	Total   int                  `json:"total"`
	Indexed bool                 `json:"indexed" jsonschema:"false until the first index run completes"`
}

// SearchResultOutput is one ranked file.
type SearchResultOutput struct {
	URI     string  `json:"uri"`
	Path    string  `json:"path" jsonschema:"file path relative to the indexed root"`
	Score   float64 `json:"score" jsonschema:"cosine similarity between 0 and 1"`
	Snippet string  `json:"snippet,omitempty"`
}

// IndexInput defines the input schema for the index tool.
type IndexInput struct {
	Force bool `json:"force,omitempty" jsonschema:"reindex every file even if unchanged"`
}

// IndexOutput reports a finished run.
type IndexOutput struct {
	RunID      string      `json:"run_id"`
	Stats      index.Stats `json:"stats"`
	DurationMS int64       `json:"duration_ms"`
	IndexedAt  string      `json:"indexed_at"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Root       string        `json:"root"`
	Source     string        `json:"source"`
	Status     index.Status  `json:"status"`
	Cache      CacheInfo     `json:"cache"`
	Embeddings EmbeddingInfo `json:"embeddings"`
}

// CacheInfo mirrors the stored snapshot.
type CacheInfo struct {
	Exists    bool   `json:"exists"`
	FileCount int    `json:"file_count"`
	IndexedAt string `json:"indexed_at,omitempty"`
}

// EmbeddingInfo lets clients decide whether semantic search is worth asking for.
type EmbeddingInfo struct {
	Enabled    bool   `json:"enabled"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	// Status is "ready", "unavailable" or "disabled".
	Status string `json:"status"`
}

// ClearCacheInput defines the input schema for the clear_cache tool (no parameters).
type ClearCacheInput struct{}

// ClearCacheOutput confirms the cache is gone.
type ClearCacheOutput struct {
	Cleared bool `json:"cleared"`
}
