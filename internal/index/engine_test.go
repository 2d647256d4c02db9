package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/internal/ui"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// MockRenderer records what a run reports.
type MockRenderer struct {
	mu              sync.Mutex
	ProgressEvents  []ui.ProgressEvent
	ErrorEvents     []ui.ErrorEvent
	CompleteCalled  bool
	CompletionStats ui.CompletionStats
}

func (m *MockRenderer) Start(context.Context) error { return nil }

func (m *MockRenderer) UpdateProgress(event ui.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProgressEvents = append(m.ProgressEvents, event)
}

func (m *MockRenderer) AddError(event ui.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorEvents = append(m.ErrorEvents, event)
}

func (m *MockRenderer) Complete(stats ui.CompletionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalled = true
	m.CompletionStats = stats
}

func (m *MockRenderer) Stop() error { return nil }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newEngine(t *testing.T, root string, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{RootDir: root}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// tenFiles writes f0.txt..f9.txt with distinct content.
func tenFiles(t *testing.T, root string) {
	t.Helper()
	for i := 0; i < 10; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("document number%d about topic%d", i, i))
	}
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(context.Background(), Options{RootDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeRootNotFound, amerrors.GetCode(err))
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
}

func TestIndex_FirstRunIndexesEverything(t *testing.T) {
	// Given: a root with three files
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\nfunc Alpha() {}")
	writeFile(t, root, "b.go", "package b\nfunc Beta() {}")
	writeFile(t, root, "docs/readme.md", "# Readme\nalpha beta gamma")
	e := newEngine(t, root)
	r := &MockRenderer{}

	// When: indexing for the first time
	res, err := e.Index(context.Background(), IndexOptions{Renderer: r})

	// Then: all files are new and a snapshot exists
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.TotalFiles)
	assert.Equal(t, 3, res.Stats.IndexedFiles)
	assert.Zero(t, res.Stats.SkippedFiles)
	assert.False(t, res.Stats.CacheHit)
	assert.NotEmpty(t, res.RunID)
	assert.True(t, r.CompleteCalled)
	assert.Equal(t, 3, r.CompletionStats.Documents)

	stats, err := e.CacheStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, 3, stats.FileCount)

	st := e.Status()
	assert.True(t, st.Indexed)
	assert.False(t, st.IsIndexing)
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, float64(100), st.Progress)
	assert.Equal(t, res.RunID, st.LastRunID)
}

func TestIndex_Idempotent(t *testing.T) {
	// Given: an indexed root
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	before, err := e.Search(context.Background(), "topic3", SearchOptions{})
	require.NoError(t, err)

	// When: indexing again without changes
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: nothing is rebuilt and results are identical
	require.NoError(t, err)
	assert.True(t, res.Stats.CacheHit)
	assert.Zero(t, res.Stats.IndexedFiles)
	assert.Equal(t, 10, res.Stats.SkippedFiles)

	after, err := e.Search(context.Background(), "topic3", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, before.Results, after.Results)
}

func TestIndex_ReopenIsCacheHit(t *testing.T) {
	// Given: an index built by one engine
	root := t.TempDir()
	tenFiles(t, root)
	first, err := New(context.Background(), Options{RootDir: root})
	require.NoError(t, err)
	_, err = first.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// When: a new engine opens the same data directory
	e := newEngine(t, root)

	// Then: the snapshot is searchable immediately and a run is a cache hit
	resp, err := e.Search(context.Background(), "topic7", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, resp.Indexed)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "f7.txt", resp.Results[0].Path)

	res, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	assert.True(t, res.Stats.CacheHit)
}

func TestIndex_ChangeClassification(t *testing.T) {
	// Given: ten indexed files
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: one file is modified and one added
	writeFile(t, root, "f2.txt", "document rewritten entirely")
	writeFile(t, root, "new.txt", "fresh document")
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: only those two are re-indexed
	require.NoError(t, err)
	assert.False(t, res.Stats.FullRebuild)
	assert.Equal(t, 11, res.Stats.TotalFiles)
	assert.Equal(t, 2, res.Stats.IndexedFiles)
	assert.Equal(t, 9, res.Stats.SkippedFiles)

	resp, err := e.Search(context.Background(), "rewritten", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "f2.txt", resp.Results[0].Path)
}

func TestIndex_DeletedFileDisappears(t *testing.T) {
	// Given: ten indexed files
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: one file is removed
	require.NoError(t, os.Remove(filepath.Join(root, "f4.txt")))
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: it is reported deleted and no longer found
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.DeletedFiles)
	resp, err := e.Search(context.Background(), "topic4", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestIndex_LargeDriftForcesFullRebuild(t *testing.T) {
	// Given: ten indexed files
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: three are deleted and one is added
	for _, n := range []string{"f0.txt", "f1.txt", "f2.txt"} {
		require.NoError(t, os.Remove(filepath.Join(root, n)))
	}
	writeFile(t, root, "extra.txt", "an extra document")
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: the previous snapshot is discarded and everything is re-added
	require.NoError(t, err)
	assert.True(t, res.Stats.FullRebuild)
	assert.Equal(t, 8, res.Stats.TotalFiles)
	assert.Equal(t, 8, res.Stats.IndexedFiles)
	assert.Zero(t, res.Stats.SkippedFiles)

	stats, err := e.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.FileCount)
}

func TestIndex_ForceReindexesEverything(t *testing.T) {
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	res, err := e.Index(context.Background(), IndexOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, 10, res.Stats.IndexedFiles)
}

func TestIndex_BusyReturnsInProgress(t *testing.T) {
	// Given: a run already holds the engine
	e := newEngine(t, t.TempDir())
	e.busy.Store(true)
	defer e.busy.Store(false)

	// When: another caller indexes or clears
	_, err := e.Index(context.Background(), IndexOptions{})
	clearErr := e.ClearCache(context.Background())

	// Then: both are told a run is in progress
	assert.ErrorIs(t, err, amerrors.ErrIndexInProgress)
	assert.ErrorIs(t, clearErr, amerrors.ErrIndexInProgress)
	assert.True(t, e.Status().IsIndexing)
}

func TestIndex_LockedByAnotherProcess(t *testing.T) {
	// Given: the data directory lock is held elsewhere
	root := t.TempDir()
	e := newEngine(t, root)
	other := flock.New(filepath.Join(e.DataDir(), LockFile))
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = other.Unlock() }()

	// When: indexing
	_, err = e.Index(context.Background(), IndexOptions{})

	// Then: the run is refused with the in-progress code
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeIndexInProgress, amerrors.GetCode(err))
}

func TestIndex_CorruptSnapshotIsRebuilt(t *testing.T) {
	// Given: a snapshot with an unknown version
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, e.store.SetMetadata(context.Background(), store.MetaVersion, "99"))

	// When: the next run loads it
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: the cache is dropped and everything is re-added
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, 10, res.Stats.IndexedFiles)
	snap, err := e.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, store.SnapshotVersion, snap.Version)
}

// cancelOnStage cancels a run once it reports stage.
type cancelOnStage struct {
	MockRenderer
	stage  ui.Stage
	cancel context.CancelFunc
}

func (c *cancelOnStage) UpdateProgress(event ui.ProgressEvent) {
	c.MockRenderer.UpdateProgress(event)
	if event.Stage == c.stage {
		c.cancel()
	}
}

func TestIndex_CancelledDuringLoadKeepsSnapshot(t *testing.T) {
	// Given: an indexed root with a saved vector index
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root, func(o *Options) { o.Embedder = embed.NewStaticEmbedder(32) })
	first, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	vectorPath := filepath.Join(e.DataDir(), VectorFile)
	require.FileExists(t, vectorPath)

	// When: a run is cancelled as it starts loading the previous snapshot
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = e.Index(ctx, IndexOptions{Renderer: &cancelOnStage{stage: ui.StageDetecting, cancel: cancel}})

	// Then: the run fails with the cancellation and nothing on disk is touched
	require.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, vectorPath)
	snap, err := e.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.FileCount)
	assert.Equal(t, vectorPath, snap.VectorIndexPath)

	// Then: the next run is a cache hit with semantic search intact
	res, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	assert.True(t, res.Stats.CacheHit)
	assert.Equal(t, first.Stats.TotalFiles, res.Stats.TotalFiles)
	resp, err := e.SearchSemantic(context.Background(), "document number3 about topic3", SearchOptions{MinScore: 0.0001})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}

func TestNew_GarbageDatabaseIsDiscarded(t *testing.T) {
	// Given: a data directory whose database is not SQLite
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello world")
	writeFile(t, root, DefaultDataDir+"/"+SnapshotFile, "this is not a database at all, just text padding")

	// When: an engine opens it
	e := newEngine(t, root)

	// Then: it starts empty and can index
	assert.False(t, e.Status().Indexed)
	res, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.IndexedFiles)
}

func TestIndex_PersistFailureKeepsOldSnapshot(t *testing.T) {
	// Given: an indexed root whose store then becomes unusable
	root := t.TempDir()
	writeFile(t, root, "a.txt", "original words")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, e.store.Close())

	// When: a change is indexed
	writeFile(t, root, "a.txt", "replacement words")
	_, err = e.Index(context.Background(), IndexOptions{})

	// Then: the failure is reported and searches still see the old corpus
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodePersistFailed, amerrors.GetCode(err))
	assert.Equal(t, "error", e.Status().State)
	assert.NotEmpty(t, e.Status().LastError)

	resp, err := e.Search(context.Background(), "original", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestIndex_IgnoresDataDirAndGitignored(t *testing.T) {
	// Given: ignored files next to real ones
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "secret.txt\n")
	writeFile(t, root, "secret.txt", "password hunter2")
	writeFile(t, root, "node_modules/lib.js", "module code")
	writeFile(t, root, "main.go", "package main")
	e := newEngine(t, root, func(o *Options) { o.RespectGitignore = true })

	// When: indexing
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// Then: only visible files are searchable
	resp, err := e.Search(context.Background(), "password", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	resp, err = e.Search(context.Background(), "module", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestClearCache(t *testing.T) {
	// Given: an indexed engine
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: the cache is cleared
	require.NoError(t, e.ClearCache(context.Background()))

	// Then: nothing is stored and searches report not indexed
	stats, err := e.CacheStats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Exists)
	assert.Zero(t, stats.FileCount)

	resp, err := e.Search(context.Background(), "topic1", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Indexed)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "idle", e.Status().State)
}

func TestSearch_NotIndexed(t *testing.T) {
	e := newEngine(t, t.TempDir())

	resp, err := e.Search(context.Background(), "anything", SearchOptions{})

	require.NoError(t, err)
	assert.False(t, resp.Indexed)
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestSearch_EmptyCorpus(t *testing.T) {
	// Given: an indexed but empty root
	e := newEngine(t, t.TempDir())
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: searching
	resp, err := e.Search(context.Background(), "anything", SearchOptions{})

	// Then: no results, no error
	require.NoError(t, err)
	assert.True(t, resp.Indexed)
	assert.Empty(t, resp.Results)
}

func TestSearch_Ranking(t *testing.T) {
	// Given: two documents sharing one term
	root := t.TempDir()
	writeFile(t, root, "one.txt", "cat dog cat")
	writeFile(t, root, "two.txt", "dog bird")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When/Then: "cat" only matches the first document
	resp, err := e.Search(context.Background(), "cat", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "one.txt", resp.Results[0].Path)
	assert.Equal(t, "file://one.txt", resp.Results[0].URI)
	assert.Equal(t, 1, resp.Total)

	// When/Then: "dog" matches both, every score within [0, 1]
	resp, err = e.Search(context.Background(), "dog", SearchOptions{MinScore: 0.0001})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	// When/Then: an unknown term finds nothing
	resp, err = e.Search(context.Background(), "zebra", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_BlankQuery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "some words")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), "   ", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, resp.Indexed)
	assert.Empty(t, resp.Results)
}

func TestSearch_RecordsUnknownTerms(t *testing.T) {
	// Given: an engine reporting to a query collector
	root := t.TempDir()
	writeFile(t, root, "one.txt", "cat dog cat")
	qm := telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig())
	e := newEngine(t, root, func(o *Options) { o.QueryMetrics = qm })
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: searching with one indexed and one unseen word
	_, err = e.Search(context.Background(), "cat zebra", SearchOptions{})
	require.NoError(t, err)

	// Then: both are counted, only the unseen one as unknown
	s := qm.Summary()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.ElementsMatch(t, []telemetry.TermCount{{Term: "cat", Count: 1}, {Term: "zebra", Count: 1}}, s.TopTerms)
	assert.Equal(t, []telemetry.TermCount{{Term: "zebra", Count: 1}}, s.TopUnknownTerms)
}

func TestSearch_Limit(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, root, fmt.Sprintf("d%d.txt", i), fmt.Sprintf("shared term plus unique%d", i))
	}
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), "shared unique2", SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d2.txt", resp.Results[0].Path)
}

func TestSearch_IncludeContentAfterStoreMovedOn(t *testing.T) {
	// Given: a published corpus whose stored content is gone
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha beta")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, e.store.Clear(context.Background()))

	// When: searching with content
	resp, err := e.Search(context.Background(), "alpha", SearchOptions{IncludeContent: true})

	// Then: the scored result is still returned, without a snippet
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.txt", resp.Results[0].Path)
	assert.Empty(t, resp.Results[0].Snippet)
}

func TestSearch_IncludeContent(t *testing.T) {
	// Given: a file whose match sits in the middle
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "line one\nline two\nline three\nthe needle is here\nline five\nline six\nline seven")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: searching with content
	resp, err := e.Search(context.Background(), "needle", SearchOptions{IncludeContent: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	// Then: the snippet is centred on the matching line
	assert.Contains(t, resp.Results[0].Snippet, "the needle is here")
	assert.NotContains(t, resp.Results[0].Snippet, "line one")

	// And without it no snippet is attached
	resp, err = e.Search(context.Background(), "needle", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results[0].Snippet)
}

func TestKnowledgeSource(t *testing.T) {
	// Given: a knowledge engine over mixed files
	root := t.TempDir()
	writeFile(t, root, "guide.md", "# Deploy guide\nrun the deploy script")
	writeFile(t, root, "deploy.sh", "deploy everything now")
	e := newEngine(t, root, func(o *Options) { o.Source = SourceKnowledge })

	// When: indexing and searching
	res, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	resp, err := e.Search(context.Background(), "deploy", SearchOptions{})
	require.NoError(t, err)

	// Then: only markdown is indexed, under knowledge:// URIs
	assert.Equal(t, 1, res.Stats.TotalFiles)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "knowledge://guide.md", resp.Results[0].URI)
	assert.Equal(t, watcher.DefaultKnowledgeDebounce, e.opts.DebounceWindow)
}

func TestSemanticSearch(t *testing.T) {
	// Given: an engine with the offline embedder
	root := t.TempDir()
	writeFile(t, root, "db.go", "package db\n// connection pool for postgres database queries")
	writeFile(t, root, "http.go", "package http\n// router handles incoming web requests")
	emb := embed.NewStaticEmbedder(64)
	e := newEngine(t, root, func(o *Options) { o.Embedder = emb })

	// When: indexing
	res, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// Then: both files have vectors and a semantic query finds the right one
	assert.Equal(t, 2, res.Stats.Vectors)
	resp, err := e.SearchSemantic(context.Background(), "database connection pool", SearchOptions{MinScore: 0.0001, IncludeContent: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "db.go", resp.Results[0].Path)
	assert.NotEmpty(t, resp.Results[0].Snippet)
	assert.FileExists(t, filepath.Join(e.DataDir(), VectorFile))
}

func TestSemanticSearch_IncrementalVectors(t *testing.T) {
	// Given: an indexed root with vectors
	root := t.TempDir()
	tenFiles(t, root)
	e := newEngine(t, root, func(o *Options) { o.Embedder = embed.NewStaticEmbedder(32) })
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	// When: one file is deleted
	require.NoError(t, os.Remove(filepath.Join(root, "f9.txt")))
	res, err := e.Index(context.Background(), IndexOptions{})

	// Then: the vector index shrinks with it
	require.NoError(t, err)
	assert.Equal(t, 9, res.Stats.Vectors)
	assert.False(t, e.vectors.Load().Contains("file://f9.txt"))
}

func TestSemanticSearch_NoEmbedder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "words")
	e := newEngine(t, root)
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)

	resp, err := e.SearchSemantic(context.Background(), "words", SearchOptions{})

	require.NoError(t, err)
	assert.True(t, resp.Indexed)
	assert.Empty(t, resp.Results)
}

func TestWatch_ChangeTriggersReindex(t *testing.T) {
	// Given: a watched, indexed root with a short window
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	e := newEngine(t, root, func(o *Options) {
		o.DebounceWindow = 50 * time.Millisecond
		o.ForcePolling = true
		o.PollInterval = 20 * time.Millisecond
	})
	_, err := e.Index(context.Background(), IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, e.StartWatching(context.Background()))
	require.NoError(t, e.StartWatching(context.Background()))
	assert.True(t, e.Status().Watching)

	// When: a new file appears
	writeFile(t, root, "b.txt", "bravo")

	// Then: it becomes searchable without an explicit Index call
	require.Eventually(t, func() bool {
		resp, err := e.Search(context.Background(), "bravo", SearchOptions{})
		return err == nil && len(resp.Results) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, e.StopWatching())
	assert.False(t, e.Status().Watching)
}

func TestWatch_RelevantFiltersExtensions(t *testing.T) {
	e := newEngine(t, t.TempDir(), func(o *Options) { o.Source = SourceKnowledge })

	assert.False(t, e.relevant(nil))
	assert.True(t, e.relevant([]watcher.FileEvent{{Path: "a.md", Operation: watcher.OpModify}}))
	assert.False(t, e.relevant([]watcher.FileEvent{{Path: "a.go", Operation: watcher.OpModify}}))
	assert.True(t, e.relevant([]watcher.FileEvent{{Path: ".gitignore", Operation: watcher.OpGitignoreChange}}))
}

func TestClose_IsIdempotent(t *testing.T) {
	e, err := New(context.Background(), Options{RootDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Index(context.Background(), IndexOptions{})
	assert.Error(t, err)
	_, err = e.Search(context.Background(), "x", SearchOptions{})
	assert.Error(t, err)
}

func TestSourceURIs(t *testing.T) {
	assert.Equal(t, "file://a/b.go", SourceCode.URI("a/b.go"))
	assert.Equal(t, "knowledge://guide.md", SourceKnowledge.URI("guide.md"))
	assert.Equal(t, "a/b.go", PathFromURI("file://a/b.go"))
	assert.Equal(t, "plain", PathFromURI("plain"))
}

func TestFileLock(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLock(filepath.Join(dir, "data"))
	b := NewFileLock(filepath.Join(dir, "data"))

	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, a.IsLocked())

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock())
	require.NoError(t, a.Unlock())
	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())
}
