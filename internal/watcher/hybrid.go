package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a tree with fsnotify and falls back to polling when
// an fsnotify handle cannot be created.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	useFsnotify bool
	filter      ruleFilter
	logger      *slog.Logger

	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	loopDone chan struct{}
	rootPath string
	opts     Options

	mu      sync.RWMutex
	started bool
	stopped bool
	dropped atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher never fails: an fsnotify error selects polling.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	h := &HybridWatcher{
		filter:   ruleFilter{rules: opts.Rules},
		logger:   slog.Default(),
		events:   make(chan FileEvent, opts.EventBufferSize),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
		opts:     opts,
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
			h.useFsnotify = true
			return h, nil
		}
		h.logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}
	h.pollWatcher = NewPollingWatcher(opts.PollInterval, h.filter)
	return h, nil
}

// WithLogger sets the logger used for dropped events and fallbacks.
func (h *HybridWatcher) WithLogger(l *slog.Logger) *HybridWatcher {
	if l != nil {
		h.logger = l
	}
	return h
}

// Start registers watches and returns; events are delivered from a
// background goroutine.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	h.started = true
	h.rootPath = absPath
	h.mu.Unlock()

	if h.useFsnotify {
		if err := h.addRecursive(absPath, false); err != nil {
			close(h.loopDone)
			return fmt.Errorf("add directories to watcher: %w", err)
		}
		go h.runFsnotify(ctx)
		return nil
	}

	if err := h.pollWatcher.Start(ctx, absPath); err != nil {
		close(h.loopDone)
		return err
	}
	go h.forwardPolling(ctx)
	return nil
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) {
	defer close(h.loopDone)
	for {
		select {
		case <-ctx.Done():
			go func() { _ = h.Stop() }()
			return
		case <-h.stopCh:
			return
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) forwardPolling(ctx context.Context) {
	defer close(h.loopDone)
	for {
		select {
		case <-ctx.Done():
			go func() { _ = h.Stop() }()
			return
		case <-h.stopCh:
			return
		case event, ok := <-h.pollWatcher.Events():
			if !ok {
				return
			}
			h.dispatch(event)
		case err, ok := <-h.pollWatcher.Errors():
			if !ok {
				return
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && !h.filter.ignored(rel, true) {
			// Files created before the watch was added are reported by
			// the walk inside addRecursive.
			if err := h.addRecursive(event.Name, true); err != nil {
				h.emitError(err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	h.dispatch(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// dispatch applies ignore rules and the special-file mapping, then emits.
func (h *HybridWatcher) dispatch(ev FileEvent) {
	switch {
	case isGitignoreFile(ev.Path):
		h.filter.invalidate(ev.Path)
		ev.Operation = OpGitignoreChange
	case isConfigFile(ev.Path):
		ev.Operation = OpConfigChange
	default:
		if h.filter.ignored(ev.Path, ev.IsDir) {
			return
		}
	}
	h.emit(ev)
}

// addRecursive watches dir and every non-ignored directory below it. With
// announce set, files already inside are emitted as creates.
func (h *HybridWatcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(h.rootPath, path)
		rel = filepath.ToSlash(rel)

		if !d.IsDir() {
			if announce && !h.filter.ignored(rel, false) {
				h.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if rel != "." && h.filter.ignored(rel, true) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) emit(ev FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- ev:
	default:
		n := h.dropped.Add(1)
		h.logger.Warn("event buffer full, dropping event",
			slog.String("path", ev.Path),
			slog.Uint64("total_dropped", n))
	}
}

// Dropped is the number of events lost to a full buffer.
func (h *HybridWatcher) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	started := h.started
	close(h.stopCh)
	h.mu.Unlock()

	var err error
	if h.fsWatcher != nil {
		err = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}
	if started {
		<-h.loopDone
	}

	h.mu.Lock()
	close(h.events)
	close(h.errors)
	h.mu.Unlock()
	return err
}

func (h *HybridWatcher) Events() <-chan FileEvent { return h.events }

func (h *HybridWatcher) Errors() <-chan error { return h.errors }

// WatcherType is "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
