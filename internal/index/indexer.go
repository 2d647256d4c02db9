package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanidx/internal/async"
	"github.com/Aman-CERP/amanidx/internal/change"
	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

// IndexOptions tune a single run.
type IndexOptions struct {
	// Force treats every file as modified and rebuilds the vector index.
	Force bool
	// Embedder overrides Options.Embedder for this run.
	Embedder embed.Embedder
	// Renderer receives progress events. Optional.
	Renderer ui.Renderer
}

// Stats counts files seen by a run.
type Stats struct {
	// TotalFiles is the number of indexable files found by the scan.
	TotalFiles int `json:"total_files"`
	// IndexedFiles were added or modified since the last snapshot.
	IndexedFiles int `json:"indexed_files"`
	// SkippedFiles were unchanged and reused their stored entry.
	SkippedFiles int `json:"skipped_files"`
	DeletedFiles int `json:"deleted_files"`
	// Unreadable files matched the rules but were binary, too large or
	// could not be read.
	UnreadableFiles int  `json:"unreadable_files"`
	CacheHit        bool `json:"cache_hit"`
	FullRebuild     bool `json:"full_rebuild"`
	Vectors         int  `json:"vectors,omitempty"`
	Fallbacks       int  `json:"fallbacks,omitempty"`
}

// IndexResult is returned by a successful run.
type IndexResult struct {
	Stats     Stats         `json:"stats"`
	Duration  time.Duration `json:"duration"`
	RunID     string        `json:"run_id"`
	IndexedAt time.Time     `json:"indexed_at"`
}

// stageTiming tracks how long each step of a run took.
type stageTiming struct {
	scan    time.Duration
	detect  time.Duration
	build   time.Duration
	embed   time.Duration
	persist time.Duration
}

// Index scans the root, compares it with the stored snapshot and rebuilds
// the model when anything changed. Only one run is active per engine; a
// concurrent caller gets ErrCodeIndexInProgress. A persist failure leaves
// the previous snapshot live and is returned to the caller.
func (e *Engine) Index(ctx context.Context, opts IndexOptions) (*IndexResult, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, amerrors.ErrIndexInProgress
	}
	defer e.busy.Store(false)

	ok, err := e.lock.TryLock()
	if err != nil {
		return nil, amerrors.InternalError("cannot lock data directory", err)
	}
	if !ok {
		return nil, lockedElsewhere(e.lock.Path())
	}
	defer func() { _ = e.lock.Unlock() }()

	r := &run{
		e:        e,
		id:       uuid.NewString(),
		opts:     opts,
		renderer: opts.Renderer,
		embedder: opts.Embedder,
		start:    time.Now(),
	}
	if r.renderer == nil {
		r.renderer = nopRenderer{}
	}
	if r.embedder == nil {
		r.embedder = e.opts.Embedder
	}
	r.logger = e.logger.With(slog.String("run_id", r.id))

	e.progress.Begin()
	res, outcome, err := r.execute(ctx)
	e.opts.Metrics.ObserveIndexRun(outcome, time.Since(r.start))

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastError = err.Error()
		e.progress.SetError(err.Error())
		r.logger.LogAttrs(ctx, slog.LevelError, "index_failed", amerrors.LogAttrs(err)...)
		return nil, err
	}
	e.lastError = ""
	e.lastRun = res
	e.progress.SetReady()
	return res, nil
}

// run holds the state of one Index call.
type run struct {
	e        *Engine
	id       string
	opts     IndexOptions
	renderer ui.Renderer
	embedder embed.Embedder
	logger   *slog.Logger
	start    time.Time
	timing   stageTiming
	warnings int
}

func (r *run) execute(ctx context.Context) (*IndexResult, string, error) {
	e := r.e
	r.logger.Info("index_started",
		slog.String("path", e.root),
		slog.Bool("force", r.opts.Force))

	// Scan.
	t := time.Now()
	records, unreadable, err := r.scan(ctx)
	if err != nil {
		return nil, telemetry.OutcomeError, err
	}
	r.timing.scan = time.Since(t)

	// Detect.
	t = time.Now()
	e.progress.SetStage(async.StageDetecting, len(records))
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDetecting, Total: len(records)})
	prev, err := r.loadPrevious(ctx)
	if err != nil {
		return nil, telemetry.OutcomeError, err
	}
	now := time.Now()
	changes := change.Detect(records, prev, change.DetectOptions{
		Force:     r.opts.Force,
		Threshold: e.opts.ChangeThreshold,
		Now:       now,
	})
	r.timing.detect = time.Since(t)

	stats := Stats{
		TotalFiles:      len(records),
		IndexedFiles:    len(changes.Added) + len(changes.Modified),
		SkippedFiles:    changes.Unchanged,
		DeletedFiles:    len(changes.Deleted),
		UnreadableFiles: unreadable,
		FullRebuild:     changes.FullRebuild,
	}
	if changes.FullRebuild {
		r.logger.Warn("previous snapshot not trusted, rebuilding from scratch",
			slog.String("reason", changes.Reason))
	}

	// A configured embedder without a loaded vector index still needs a run.
	vectorsReady := r.embedder == nil || e.vectors.Load() != nil
	if prev != nil && changes.Empty() && vectorsReady {
		if e.corpus.Load() == nil {
			e.publish(prev.Corpus())
		}
		stats.CacheHit = true
		stats.SkippedFiles = len(records)
		res := r.result(stats, prev.IndexedAt)
		r.complete(res, nil)
		return res, telemetry.OutcomeCacheHit, nil
	}

	// Build. The whole corpus is rebuilt so documents and IDF always match.
	t = time.Now()
	e.progress.SetStage(async.StageBuilding, len(records))
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageBuilding, Total: len(records)})
	sources := make([]tfidf.Source, len(records))
	contents := make(map[string]string, len(records))
	for i, rec := range records {
		content := string(rec.Content)
		sources[i] = tfidf.Source{URI: e.opts.Source.URI(rec.Path), Path: rec.Path, Content: content}
		contents[rec.Path] = content
	}
	corpus := e.builder.Build(sources)
	e.progress.UpdateFiles(len(records))
	r.timing.build = time.Since(t)

	// Embed.
	t = time.Now()
	vectors, err := r.embed(ctx, records, prev, changes, &stats)
	if err != nil {
		return nil, telemetry.OutcomeError, err
	}
	r.timing.embed = time.Since(t)

	// Persist. Not cancellable from here on.
	t = time.Now()
	pctx := context.WithoutCancel(ctx)
	e.progress.SetStage(async.StagePersisting, 1)
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StagePersisting, Total: 1})
	snap := &store.Snapshot{
		Version:   store.SnapshotVersion,
		RootPath:  e.root,
		IndexedAt: now,
		FileCount: len(records),
		Files:     changes.Entries,
		Documents: corpus.Documents(),
		IDF:       corpus.IDF(),
		Contents:  contents,
	}
	vectorPath := filepath.Join(e.dataDir, VectorFile)
	if vectors != nil {
		snap.VectorIndexPath = vectorPath
		snap.EmbeddingModel = r.embedder.ModelName()
	}
	if err := e.store.Save(pctx, snap); err != nil {
		if vectors != nil && vectors != e.vectors.Load() {
			_ = vectors.Close()
		}
		return nil, telemetry.OutcomeError, err
	}
	if vectors != nil {
		if err := vectors.Save(vectorPath); err != nil {
			r.warnings++
			r.logger.Warn("vector index not saved, semantic search disabled until next run",
				slog.String("path", vectorPath),
				slog.String("error", err.Error()))
			_ = e.store.SetMetadata(pctx, store.MetaVectorIndexPath, "")
		}
	} else if err := store.RemoveHNSWFiles(vectorPath); err != nil {
		r.logger.Warn("failed to remove stale vector index", slog.String("error", err.Error()))
	}
	r.timing.persist = time.Since(t)

	// Publish only after the commit.
	e.publish(corpus)
	if old := e.vectors.Swap(vectors); old != nil && old != vectors {
		_ = old.Close()
	}

	res := r.result(stats, now)
	r.complete(res, corpus)
	if changes.FullRebuild {
		return res, telemetry.OutcomeFull, nil
	}
	return res, telemetry.OutcomeIncremental, nil
}

// scan collects indexable records. Entries the scanner could not read are
// counted and reported, never fatal.
func (r *run) scan(ctx context.Context) ([]*scanner.FileRecord, int, error) {
	e := r.e
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + e.root})

	ch, err := scanner.New().WithLogger(r.logger).Scan(ctx, &scanner.ScanOptions{
		RootDir:          e.root,
		DataDir:          e.dataDirPattern(),
		Exclude:          e.opts.Exclude,
		RespectGitignore: e.opts.RespectGitignore,
		Extensions:       e.opts.Extensions,
		MaxFileSize:      e.opts.MaxFileSize,
		Workers:          e.opts.Workers,
	})
	if err != nil {
		return nil, 0, err
	}

	var records []*scanner.FileRecord
	unreadable := 0
	var scanErr error
	for res := range ch {
		switch {
		case res.Error != nil:
			scanErr = res.Error
		case res.Skipped != nil:
			unreadable++
			r.renderer.AddError(ui.ErrorEvent{
				File:   res.Skipped.Path,
				Err:    fmt.Errorf("skipped: %s", res.Skipped.Reason),
				IsWarn: true,
			})
		case res.File != nil:
			records = append(records, res.File)
			e.progress.Advance(res.File.Path)
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageScanning,
				Current:     len(records),
				CurrentFile: res.File.Path,
			})
		}
	}
	if scanErr != nil {
		return nil, 0, scanErr
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	r.warnings += unreadable
	r.logger.Info("index_scan_complete",
		slog.Int("files", len(records)),
		slog.Int("unreadable", unreadable))
	return records, unreadable, nil
}

// dataDirPattern is the data directory relative to the root when it lives
// inside it, so the scanner skips the engine's own files.
func (e *Engine) dataDirPattern() string {
	rel, err := filepath.Rel(e.root, e.dataDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// loadPrevious returns the stored snapshot. Only a corrupt snapshot is
// discarded and treated as absent; a cancelled context or any other load
// failure ends the run with the persisted state untouched.
func (r *run) loadPrevious(ctx context.Context) (*store.Snapshot, error) {
	prev, err := r.e.store.Load(ctx)
	if err == nil {
		return prev, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, amerrors.ErrCacheCorrupt) {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, "index cache corrupt, rebuilding", amerrors.LogAttrs(err)...)
	r.warnings++
	// Searches keep the published corpus until this run commits.
	r.e.clearDisk(ctx)
	return nil, nil
}

// embed refreshes the vector index when an embedder is configured. It
// reuses the current index and only embeds added or modified files, unless
// the run is a full rebuild or the model changed.
func (r *run) embed(ctx context.Context, records []*scanner.FileRecord, prev *store.Snapshot, changes *change.Changes, stats *Stats) (*store.HNSWStore, error) {
	if r.embedder == nil {
		return nil, nil
	}
	e := r.e

	dims := r.embedder.Dimensions()
	current := e.vectors.Load()
	reuse := current != nil &&
		prev != nil &&
		!changes.FullRebuild &&
		!r.opts.Force &&
		current.Config().Dimensions == dims &&
		r.embedder == e.opts.Embedder

	var vs *store.HNSWStore
	if reuse {
		// Work on a copy so searches keep using the committed index.
		clone, err := cloneVectors(current, filepath.Join(e.dataDir, VectorFile+".work"))
		if err != nil {
			r.logger.Warn("cannot copy vector index, re-embedding everything", slog.String("error", err.Error()))
			reuse = false
		} else {
			vs = clone
		}
	}
	if !reuse {
		var err error
		vs, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
		if err != nil {
			r.logger.Warn("vector index disabled", slog.String("error", err.Error()))
			return nil, nil
		}
	}

	var uris []string
	if reuse {
		for _, p := range changes.Deleted {
			uris = append(uris, e.opts.Source.URI(p))
		}
		if err := vs.Delete(ctx, uris); err != nil {
			return nil, err
		}
	}

	changed := make(map[string]bool, len(changes.Added)+len(changes.Modified))
	for _, p := range changes.Added {
		changed[p] = true
	}
	for _, p := range changes.Modified {
		changed[p] = true
	}
	var items []embed.Item
	for _, rec := range records {
		if reuse && !changed[rec.Path] && vs.Contains(e.opts.Source.URI(rec.Path)) {
			continue
		}
		items = append(items, embed.Item{
			ID:       e.opts.Source.URI(rec.Path),
			Content:  string(rec.Content),
			Category: string(e.opts.Source),
			Language: rec.Language,
		})
	}

	e.progress.SetStage(async.StageEmbedding, len(items))
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(items)})
	aug := embed.NewAugmenter(r.embedder, embed.AugmenterConfig{
		BatchSize: e.opts.EmbedBatchSize,
		Metrics:   e.opts.Metrics,
		Logger:    r.logger,
		Progress: func(done, total int) {
			e.progress.UpdateFiles(done)
			r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
		},
	})
	docs, astats, err := aug.Embed(ctx, items)
	if err != nil {
		return nil, err
	}
	if err := vs.Upsert(ctx, docs); err != nil {
		return nil, err
	}
	stats.Vectors = vs.Count()
	stats.Fallbacks = astats.Fallbacks
	if astats.FailedBatches > 0 {
		r.warnings += astats.FailedBatches
		r.renderer.AddError(ui.ErrorEvent{
			Err:    fmt.Errorf("%d of %d embedding batches failed, fallback vectors used", astats.FailedBatches, astats.Batches),
			IsWarn: true,
		})
	}
	r.logger.Info("index_embedding_complete",
		slog.Int("embedded", len(docs)),
		slog.Int("vectors", vs.Count()),
		slog.Int("fallbacks", astats.Fallbacks),
		slog.Bool("reused", reuse))
	return vs, nil
}

// cloneVectors round-trips the store through a scratch file.
func cloneVectors(vs *store.HNSWStore, scratch string) (*store.HNSWStore, error) {
	defer func() { _ = store.RemoveHNSWFiles(scratch) }()
	if err := vs.Save(scratch); err != nil {
		return nil, err
	}
	return store.LoadHNSWStore(scratch)
}

func (r *run) result(stats Stats, indexedAt time.Time) *IndexResult {
	return &IndexResult{
		Stats:     stats,
		Duration:  time.Since(r.start),
		RunID:     r.id,
		IndexedAt: indexedAt,
	}
}

func (r *run) complete(res *IndexResult, corpus *tfidf.Corpus) {
	cs := ui.CompletionStats{
		Files:       res.Stats.TotalFiles,
		Indexed:     res.Stats.IndexedFiles,
		Skipped:     res.Stats.SkippedFiles,
		Deleted:     res.Stats.DeletedFiles,
		Vectors:     res.Stats.Vectors,
		CacheHit:    res.Stats.CacheHit,
		FullRebuild: res.Stats.FullRebuild,
		Duration:    res.Duration,
		Warnings:    r.warnings,
		Stages: ui.StageTimings{
			Scan:    r.timing.scan,
			Detect:  r.timing.detect,
			Build:   r.timing.build,
			Embed:   r.timing.embed,
			Persist: r.timing.persist,
		},
	}
	if corpus != nil {
		cs.Documents = corpus.Len()
		cs.Terms = len(corpus.IDF())
	}
	if r.embedder != nil {
		cs.Embedder = ui.EmbedderInfo{
			Model:      r.embedder.ModelName(),
			Dimensions: r.embedder.Dimensions(),
		}
	}
	r.renderer.Complete(cs)

	r.logger.Info("index_complete",
		slog.Int("files", res.Stats.TotalFiles),
		slog.Int("indexed", res.Stats.IndexedFiles),
		slog.Int("skipped", res.Stats.SkippedFiles),
		slog.Int("deleted", res.Stats.DeletedFiles),
		slog.Bool("cache_hit", res.Stats.CacheHit),
		slog.Bool("full_rebuild", res.Stats.FullRebuild),
		slog.Int64("duration_total_ms", res.Duration.Milliseconds()),
		slog.Int64("duration_scan_ms", r.timing.scan.Milliseconds()),
		slog.Int64("duration_detect_ms", r.timing.detect.Milliseconds()),
		slog.Int64("duration_build_ms", r.timing.build.Milliseconds()),
		slog.Int64("duration_embed_ms", r.timing.embed.Milliseconds()),
		slog.Int64("duration_persist_ms", r.timing.persist.Milliseconds()))
}

// nopRenderer discards progress when the caller did not ask for it.
type nopRenderer struct{}

func (nopRenderer) Start(context.Context) error     { return nil }
func (nopRenderer) UpdateProgress(ui.ProgressEvent) {}
func (nopRenderer) AddError(ui.ErrorEvent)          {}
func (nopRenderer) Complete(ui.CompletionStats)     {}
func (nopRenderer) Stop() error                     { return nil }
