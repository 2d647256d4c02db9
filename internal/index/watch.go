package index

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/gitignore"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// StartWatching watches the root and re-indexes after each quiet period.
// The first run is not triggered here; call Index for that. Calling it
// twice is a no-op.
func (e *Engine) StartWatching(ctx context.Context) error {
	if e.closed.Load() {
		return errEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scheduler != nil {
		return nil
	}

	rules, err := gitignore.NewRules(e.root, gitignore.RulesOptions{
		DataDir:          e.dataDirPattern(),
		Exclude:          e.opts.Exclude,
		RespectGitignore: e.opts.RespectGitignore,
	})
	if err != nil {
		return amerrors.New(amerrors.ErrCodeWatchFailed, "cannot load ignore rules", err)
	}
	w, err := watcher.NewHybridWatcher(watcher.Options{
		PollInterval: e.opts.PollInterval,
		Rules:        rules,
		ForcePolling: e.opts.ForcePolling,
	})
	if err != nil {
		return amerrors.New(amerrors.ErrCodeWatchFailed, "cannot create watcher", err)
	}
	w.WithLogger(e.logger)
	if err := w.Start(ctx, e.root); err != nil {
		_ = w.Stop()
		return amerrors.New(amerrors.ErrCodeWatchFailed, "cannot watch "+e.root, err)
	}

	var sched *watcher.Scheduler
	sched = watcher.NewScheduler(watcher.SchedulerConfig{
		Source:  string(e.opts.Source),
		Window:  e.opts.DebounceWindow,
		Logger:  e.logger,
		Metrics: e.opts.Metrics,
		Reindex: func(ctx context.Context, batch []watcher.FileEvent) error {
			return e.reindex(ctx, sched, batch)
		},
	})
	sched.Start(ctx, w)
	e.scheduler = sched

	e.logger.Info("watching for changes",
		slog.String("path", e.root),
		slog.String("watcher", w.WatcherType()),
		slog.Duration("debounce", e.opts.DebounceWindow))
	return nil
}

// StopWatching stops the scheduler and its watcher. It waits for a rebuild
// already in flight.
func (e *Engine) StopWatching() error {
	e.mu.Lock()
	sched := e.scheduler
	e.scheduler = nil
	e.mu.Unlock()
	if sched == nil {
		return nil
	}
	return sched.Stop()
}

// reindex is the scheduler's callback. A batch that collides with another
// run is handed back so it is retried after the next quiet period.
func (e *Engine) reindex(ctx context.Context, sched *watcher.Scheduler, batch []watcher.FileEvent) error {
	if !e.relevant(batch) {
		e.logger.Debug("ignoring changes outside the indexed extensions", slog.Int("changes", len(batch)))
		return nil
	}
	for _, ev := range batch {
		if ev.Operation == watcher.OpConfigChange {
			e.logger.Info("project config changed, restart to apply new settings",
				slog.String("path", ev.Path))
		}
	}

	res, err := e.Index(ctx, IndexOptions{})
	if errors.Is(err, amerrors.ErrIndexInProgress) {
		for _, ev := range batch {
			sched.Notify(ev)
		}
		return nil
	}
	if err != nil {
		return err
	}
	e.logger.Info("reindexed after changes",
		slog.Int("changes", len(batch)),
		slog.Int("indexed", res.Stats.IndexedFiles),
		slog.Int("deleted", res.Stats.DeletedFiles),
		slog.String("run_id", res.RunID))
	return nil
}

// relevant reports whether any event could change the index.
func (e *Engine) relevant(batch []watcher.FileEvent) bool {
	if len(e.opts.Extensions) == 0 {
		return len(batch) > 0
	}
	for _, ev := range batch {
		switch ev.Operation {
		case watcher.OpGitignoreChange, watcher.OpConfigChange:
			return true
		}
		if ev.IsDir {
			return true
		}
		ext := strings.ToLower(path.Ext(ev.Path))
		for _, want := range e.opts.Extensions {
			if strings.EqualFold(ext, want) {
				return true
			}
		}
	}
	return false
}
