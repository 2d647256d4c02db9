// Package index wires scanning, change detection, the TF-IDF model, the
// snapshot store and the optional vector index into one Engine.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanidx/internal/async"
	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// Files inside the data directory.
const (
	DefaultDataDir = ".amanidx"
	SnapshotFile   = "index.db"
	VectorFile     = "vectors.hnsw"
)

// Source selects what an engine indexes and how its documents are named.
type Source string

const (
	SourceCode      Source = "code"
	SourceKnowledge Source = "knowledge"
)

// KnowledgeExtensions are scanned by a knowledge engine when no explicit
// extension filter is configured.
var KnowledgeExtensions = []string{".md", ".markdown", ".mdx"}

// Scheme is the URI scheme of the source's documents.
func (s Source) Scheme() string {
	if s == SourceKnowledge {
		return "knowledge"
	}
	return "file"
}

// URI names the document at the root-relative path.
func (s Source) URI(path string) string {
	return s.Scheme() + "://" + path
}

// PathFromURI strips any scheme prefix.
func PathFromURI(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[i+3:]
	}
	return uri
}

// Options configure an Engine. Only RootDir is required.
type Options struct {
	RootDir string
	// DataDir defaults to RootDir/.amanidx.
	DataDir string
	Source  Source

	Exclude          []string
	RespectGitignore bool
	// Extensions defaults to KnowledgeExtensions for the knowledge source.
	Extensions  []string
	MaxFileSize int64
	Workers     int

	// ChangeThreshold defaults to change.DefaultThreshold; negative disables.
	ChangeThreshold float64
	Tokenizer       tfidf.TokenizerOptions
	SearchLimit     int
	MinScore        float64

	// StoreDriver is store.DriverModernc (default) or store.DriverCGO.
	StoreDriver string

	// Embedder enables vector augmentation. Nil means keyword-only.
	Embedder       embed.Embedder
	EmbedBatchSize int

	// DebounceWindow defaults per source: 1s for code, 300ms for knowledge.
	DebounceWindow time.Duration
	PollInterval   time.Duration
	ForcePolling   bool

	Metrics      *telemetry.Metrics
	QueryMetrics *telemetry.QueryMetrics
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Source == "" {
		o.Source = SourceCode
	}
	if o.DataDir == "" {
		o.DataDir = filepath.Join(o.RootDir, DefaultDataDir)
	}
	if o.Source == SourceKnowledge && len(o.Extensions) == 0 {
		o.Extensions = KnowledgeExtensions
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = tfidf.DefaultLimit
	}
	if o.MinScore <= 0 {
		o.MinScore = tfidf.DefaultMinScore
	}
	if o.StoreDriver == "" {
		o.StoreDriver = store.DriverModernc
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = watcher.DefaultCodeDebounce
		if o.Source == SourceKnowledge {
			o.DebounceWindow = watcher.DefaultKnowledgeDebounce
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Engine owns one index: its store, its in-memory query model and its
// watcher. Searches read the last committed corpus without locking; a
// rebuild swaps it only after the snapshot is saved.
type Engine struct {
	opts    Options
	root    string
	dataDir string
	logger  *slog.Logger

	store     *store.SQLiteStore
	tokenizer *tfidf.Tokenizer
	builder   *tfidf.Builder
	searcher  *tfidf.Searcher
	lock      *FileLock
	progress  *async.IndexProgress

	// queryEmbedder embeds semantic queries behind the engine's breaker.
	queryEmbedder *embed.Augmenter

	corpus  atomic.Pointer[tfidf.Corpus]
	vectors atomic.Pointer[store.HNSWStore]
	busy    atomic.Bool
	closed  atomic.Bool

	mu        sync.Mutex
	lastError string
	lastRun   *IndexResult
	scheduler *watcher.Scheduler
}

// New opens (or creates) the index for opts.RootDir and loads the last
// snapshot. A corrupt snapshot is dropped so the next Index rebuilds.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.RootDir == "" {
		return nil, amerrors.ValidationError("root directory is required", nil)
	}
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, amerrors.New(amerrors.ErrCodeRootNotFound, "cannot open root "+root, err)
	}
	opts.RootDir = root
	opts = opts.withDefaults()

	dataDir, err := filepath.Abs(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "cannot create data directory "+dataDir, err)
	}

	st, err := store.OpenSQLite(filepath.Join(dataDir, SnapshotFile), store.SQLiteOptions{
		Driver: opts.StoreDriver,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	tok := tfidf.NewTokenizer(opts.Tokenizer)
	e := &Engine{
		opts:      opts,
		root:      root,
		dataDir:   dataDir,
		logger:    opts.Logger.With(slog.String("source", string(opts.Source))),
		store:     st,
		tokenizer: tok,
		builder:   tfidf.NewBuilder(tok),
		searcher:  tfidf.NewSearcher(tok),
		lock:      NewFileLock(dataDir),
		progress:  async.NewIndexProgress(),
	}

	if opts.Embedder != nil {
		e.queryEmbedder = embed.NewAugmenter(opts.Embedder, embed.AugmenterConfig{
			BatchSize: opts.EmbedBatchSize,
			Metrics:   opts.Metrics,
			Logger:    e.logger,
		})
	}

	e.loadSnapshot(ctx)
	return e, nil
}

// loadSnapshot publishes whatever is on disk. Failures only cost a rebuild.
func (e *Engine) loadSnapshot(ctx context.Context) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.LogAttrs(ctx, slog.LevelWarn, "dropping unreadable index snapshot", amerrors.LogAttrs(err)...)
		e.dropCache(ctx)
		return
	}
	if snap == nil {
		return
	}
	e.publish(snap.Corpus())
	e.progress.SetStage(async.StageScanning, snap.FileCount)
	e.progress.SetReady()

	if snap.VectorIndexPath == "" || e.opts.Embedder == nil {
		return
	}
	if snap.EmbeddingModel != e.opts.Embedder.ModelName() {
		e.logger.Info("embedding model changed, vectors will be rebuilt",
			slog.String("stored_model", snap.EmbeddingModel),
			slog.String("model", e.opts.Embedder.ModelName()))
		return
	}
	vs, err := store.LoadHNSWStore(snap.VectorIndexPath)
	if err != nil {
		e.logger.Warn("cannot load vector index, vectors will be rebuilt",
			slog.String("path", snap.VectorIndexPath),
			slog.String("error", err.Error()))
		return
	}
	e.vectors.Store(vs)
}

// dropCache discards the stored snapshot and anything loaded from it.
func (e *Engine) dropCache(ctx context.Context) {
	e.clearDisk(ctx)
	e.corpus.Store(nil)
	if old := e.vectors.Swap(nil); old != nil {
		_ = old.Close()
	}
}

// clearDisk removes persisted state but leaves the published corpus alone.
func (e *Engine) clearDisk(ctx context.Context) {
	if err := e.store.Clear(ctx); err != nil {
		e.logger.Warn("failed to clear snapshot store", slog.String("error", err.Error()))
	}
	if err := store.RemoveHNSWFiles(filepath.Join(e.dataDir, VectorFile)); err != nil {
		e.logger.Warn("failed to remove vector index", slog.String("error", err.Error()))
	}
}

func (e *Engine) publish(c *tfidf.Corpus) {
	e.corpus.Store(c)
	terms := 0
	if c != nil {
		terms = len(c.IDF())
	}
	e.opts.Metrics.SetCorpusSize(c.Len(), terms)
}

// Root is the absolute indexed directory.
func (e *Engine) Root() string { return e.root }

// DataDir is the absolute data directory.
func (e *Engine) DataDir() string { return e.dataDir }

func (e *Engine) Source() Source { return e.opts.Source }

// Progress is the live tracker updated by Index.
func (e *Engine) Progress() *async.IndexProgress { return e.progress }

// Status reports whether a run is active and how far it got.
type Status struct {
	IsIndexing   bool    `json:"is_indexing"`
	Progress     float64 `json:"progress"`
	CurrentFile  string  `json:"current_file,omitempty"`
	TotalFiles   int     `json:"total_files"`
	IndexedFiles int     `json:"indexed_files"`
	State        string  `json:"state"`
	Stage        string  `json:"stage,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
	// Indexed is false until a snapshot exists.
	Indexed    bool   `json:"indexed"`
	Watching   bool   `json:"watching"`
	WatchState string `json:"watch_state,omitempty"`
	LastRunID  string `json:"last_run_id,omitempty"`
}

func (e *Engine) Status() Status {
	snap := e.progress.Snapshot()
	st := Status{
		IsIndexing:   e.busy.Load(),
		Progress:     snap.ProgressPct,
		CurrentFile:  snap.CurrentFile,
		TotalFiles:   snap.FilesTotal,
		IndexedFiles: snap.FilesProcessed,
		State:        snap.Status,
		Stage:        snap.Stage,
		Indexed:      e.corpus.Load() != nil,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st.LastError = e.lastError
	if e.lastRun != nil {
		st.LastRunID = e.lastRun.RunID
	}
	if e.scheduler != nil {
		st.Watching = true
		st.WatchState = e.scheduler.State().String()
	}
	return st
}

// CacheStats describes the stored snapshot.
func (e *Engine) CacheStats(ctx context.Context) (store.CacheStats, error) {
	if e.closed.Load() {
		return store.CacheStats{}, errEngineClosed
	}
	return e.store.Stats(ctx)
}

// FileContent returns the indexed text of a root-relative path as of the
// last committed snapshot.
func (e *Engine) FileContent(ctx context.Context, path string) (string, bool, error) {
	if e.closed.Load() {
		return "", false, errEngineClosed
	}
	return e.store.FileContent(ctx, filepath.ToSlash(path))
}

// ClearCache deletes the snapshot and vector index. It fails with
// ErrCodeIndexInProgress while a run is active.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.closed.Load() {
		return errEngineClosed
	}
	if !e.busy.CompareAndSwap(false, true) {
		return amerrors.ErrIndexInProgress
	}
	defer e.busy.Store(false)

	ok, err := e.lock.TryLock()
	if err != nil {
		return amerrors.InternalError("cannot lock data directory", err)
	}
	if !ok {
		return lockedElsewhere(e.lock.Path())
	}
	defer func() { _ = e.lock.Unlock() }()

	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	if err := store.RemoveHNSWFiles(filepath.Join(e.dataDir, VectorFile)); err != nil {
		return amerrors.PersistError(err)
	}
	e.publish(nil)
	if old := e.vectors.Swap(nil); old != nil {
		_ = old.Close()
	}
	e.progress.Reset()

	e.mu.Lock()
	e.lastError = ""
	e.lastRun = nil
	e.mu.Unlock()

	e.logger.Info("index cache cleared", slog.String("path", e.dataDir))
	return nil
}

// Close stops watching and releases the store. The engine is unusable
// afterwards.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	werr := e.StopWatching()
	if vs := e.vectors.Swap(nil); vs != nil {
		_ = vs.Close()
	}
	serr := e.store.Close()
	if werr != nil {
		return werr
	}
	return serr
}

var errEngineClosed = amerrors.InternalError("engine is closed", nil)

func lockedElsewhere(path string) error {
	return amerrors.New(amerrors.ErrCodeIndexInProgress, "another process is indexing this directory", nil).
		WithDetail("lock", path).
		WithSuggestion("Wait for the other amanidx process to finish, then retry.")
}
