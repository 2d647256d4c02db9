// Package store persists index state: the TF-IDF snapshot in SQLite and
// optional embedding vectors in an HNSW graph on disk.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

// SnapshotVersion is written to metadata.version. A snapshot with another
// version is treated as corrupt and rebuilt.
const SnapshotVersion = "1"

// Metadata keys.
const (
	MetaVersion         = "version"
	MetaRootPath        = "rootPath"
	MetaIndexedAt       = "indexedAt"
	MetaFileCount       = "fileCount"
	MetaVectorIndexPath = "vectorIndexPath"
	MetaEmbeddingModel  = "embeddingModel"
)

// FileEntry is the persisted record of one indexed file.
type FileEntry struct {
	Path        string
	ModTime     time.Time
	ContentHash string
	Size        int64
	Language    string
	IndexedAt   time.Time
}

// Snapshot is everything a successful run persists. Documents and IDF are
// always computed together and saved together.
type Snapshot struct {
	Version         string
	RootPath        string
	IndexedAt       time.Time
	FileCount       int
	Files           map[string]*FileEntry
	Documents       []*tfidf.Document
	IDF             tfidf.IDFTable
	VectorIndexPath string
	EmbeddingModel  string

	// Contents is written on Save for snippet lookups and is not filled in
	// by Load; use SnapshotStore.FileContent.
	Contents map[string]string
}

// Corpus rebuilds the query model from the snapshot.
func (s *Snapshot) Corpus() *tfidf.Corpus {
	if s == nil {
		return tfidf.NewCorpus(nil, nil)
	}
	return tfidf.NewCorpus(s.Documents, s.IDF)
}

// CacheStats summarises what is on disk without loading it.
type CacheStats struct {
	Exists    bool
	FileCount int
	IndexedAt time.Time
}

// SnapshotStore is the persistence contract of the index engine.
type SnapshotStore interface {
	// Load returns (nil, nil) when nothing has been saved. A snapshot that
	// cannot be read back yields an ErrCodeCacheCorrupt error.
	Load(ctx context.Context) (*Snapshot, error)
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
	Exists(ctx context.Context) (bool, error)

	FileEntries(ctx context.Context) (map[string]*FileEntry, error)
	TermFrequencies(ctx context.Context, path string) (map[string]int, error)
	Documents(ctx context.Context) ([]*tfidf.Document, error)
	IDF(ctx context.Context) (tfidf.IDFTable, error)
	FileContent(ctx context.Context, path string) (string, bool, error)
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error

	Close() error
}

// VectorMetadata travels with each embedding.
type VectorMetadata struct {
	Snippet  string
	Category string
	Language string
}

// VectorDocument is one embedded document; ID matches a tfidf.Document URI.
type VectorDocument struct {
	ID        string
	Embedding []float32
	Metadata  VectorMetadata
}

// VectorResult is one nearest neighbour.
type VectorResult struct {
	ID       string
	Distance float32
	// Score is a similarity in [0, 1].
	Score    float32
	Metadata VectorMetadata
}

// VectorStoreConfig configures an HNSWStore.
type VectorStoreConfig struct {
	Dimensions int
	// Metric is "cos" or "l2".
	Metric   string
	M        int
	EfSearch int
}

// DefaultVectorStoreConfig uses cosine distance.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{Dimensions: dimensions, Metric: "cos", M: 16, EfSearch: 64}
}

// ErrDimensionMismatch is returned when a vector's length differs from the
// store's configured dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
