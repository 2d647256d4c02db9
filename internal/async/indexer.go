package async

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerFile is present in the data directory while a background run is in
// flight. Finding it at startup means the previous process died mid-run.
const MarkerFile = "indexing.inprogress"

// IndexFunc does the actual work.
type IndexFunc func(ctx context.Context) error

type IndexerConfig struct {
	DataDir string
	// Progress is shared with the engine so status readers see the run.
	// A private tracker is created when nil.
	Progress *IndexProgress
}

// BackgroundIndexer runs one IndexFunc in a goroutine.
type BackgroundIndexer struct {
	config   IndexerConfig
	progress *IndexProgress

	IndexFunc IndexFunc

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

func NewBackgroundIndexer(cfg IndexerConfig) *BackgroundIndexer {
	p := cfg.Progress
	if p == nil {
		p = NewIndexProgress()
	}
	return &BackgroundIndexer{
		config:   cfg,
		progress: p,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start is non-blocking. A second call is a no-op; use Wait for the result.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *BackgroundIndexer) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		b.fail(fmt.Errorf("create data directory: %w", err))
		return
	}
	marker := filepath.Join(b.config.DataDir, MarkerFile)
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		b.fail(fmt.Errorf("write run marker: %w", err))
		return
	}

	if b.IndexFunc != nil {
		if err := b.IndexFunc(ctx); err != nil {
			// The marker stays so the next start knows the run did not finish.
			b.fail(err)
			return
		}
	}
	_ = os.Remove(marker)
	b.progress.SetReady()
}

func (b *BackgroundIndexer) fail(err error) {
	b.progress.SetError(err.Error())
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Stop cancels the run's context and waits for it to return.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	<-b.doneCh
}

// Wait blocks until the run completes and returns its error.
func (b *BackgroundIndexer) Wait() error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return nil
	}
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteRun reports whether a previous background run left its marker.
func HasIncompleteRun(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, MarkerFile))
	return err == nil
}

// ClearIncompleteRun removes a stale marker.
func ClearIncompleteRun(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
