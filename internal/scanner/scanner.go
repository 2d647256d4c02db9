package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/gitignore"
)

// Scanner discovers indexable files. A Scanner holds no per-scan state, so
// one value can serve any number of scans.
type Scanner struct {
	logger *slog.Logger
}

// New creates a Scanner that logs to slog.Default.
func New() *Scanner {
	return &Scanner{logger: slog.Default()}
}

// WithLogger returns a copy of s logging to l.
func (s *Scanner) WithLogger(l *slog.Logger) *Scanner {
	return &Scanner{logger: l}
}

// Scan walks opts.RootDir and streams results until the walk ends or ctx is
// cancelled; the channel is always closed. Each call walks the tree afresh.
// Unreadable entries are logged and reported as Skipped, never as Error.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	root := opts.RootDir
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeRootNotFound, "cannot open root "+absRoot, err)
	}
	if !info.IsDir() {
		return nil, amerrors.New(amerrors.ErrCodeRootNotFound, "root is not a directory: "+absRoot, nil)
	}

	rules := opts.Rules
	if rules == nil {
		rules, err = gitignore.NewRules(absRoot, gitignore.RulesOptions{
			DataDir:          opts.DataDir,
			Exclude:          opts.Exclude,
			RespectGitignore: opts.RespectGitignore,
		})
		if err != nil {
			return nil, err
		}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan ScanResult, workers*4)
	w := &walk{
		s:       s,
		opts:    opts,
		absRoot: absRoot,
		rules:   rules,
		maxSize: maxSize,
		out:     results,
	}

	go func() {
		defer close(results)
		w.run(ctx, workers)
	}()
	return results, nil
}

type walk struct {
	s       *Scanner
	opts    *ScanOptions
	absRoot string
	rules   *gitignore.Rules
	maxSize int64
	out     chan<- ScanResult
}

func (w *walk) run(ctx context.Context, workers int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := filepath.WalkDir(w.absRoot, func(path string, d fs.DirEntry, err error) error {
		if cerr := gctx.Err(); cerr != nil {
			return cerr
		}
		if path == w.absRoot {
			if err != nil {
				return err
			}
			return nil
		}

		rel, relErr := filepath.Rel(w.absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			w.skip(gctx, rel, SkipUnreadable, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if w.rules.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.rules.Ignored(rel, false) || !w.opts.wantExt(rel) {
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(rel))] {
			w.skip(gctx, rel, SkipBinary, nil)
			return nil
		}

		g.Go(func() error {
			w.read(gctx, path, rel)
			return nil
		})
		return nil
	})

	_ = g.Wait()

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		select {
		case w.out <- ScanResult{Error: amerrors.New(amerrors.ErrCodeScanFailed, "walk "+w.absRoot, walkErr)}:
		case <-ctx.Done():
		}
	}
}

func (w *walk) read(ctx context.Context, abs, rel string) {
	info, err := os.Stat(abs)
	if err != nil {
		w.skip(ctx, rel, SkipUnreadable, err)
		return
	}
	if info.Size() > w.maxSize {
		w.skip(ctx, rel, SkipTooLarge, nil)
		return
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		w.skip(ctx, rel, SkipUnreadable, err)
		return
	}
	if isBinary(content) {
		w.skip(ctx, rel, SkipBinary, nil)
		return
	}

	rec := &FileRecord{
		Path:     rel,
		AbsPath:  abs,
		Content:  content,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Language: DetectLanguage(rel),
	}
	select {
	case w.out <- ScanResult{File: rec}:
	case <-ctx.Done():
	}
}

func (w *walk) skip(ctx context.Context, rel string, reason SkipReason, cause error) {
	if cause != nil {
		attrs := amerrors.LogAttrs(amerrors.ScanError(rel, cause))
		w.s.logger.LogAttrs(ctx, slog.LevelWarn, "skipping unreadable entry", attrs...)
	} else {
		w.s.logger.Debug("skipping file", slog.String("path", rel), slog.String("reason", string(reason)))
	}
	select {
	case w.out <- ScanResult{Skipped: &Skipped{Path: rel, Reason: reason}}:
	case <-ctx.Done():
	}
}

func isBinary(content []byte) bool {
	head := content
	if len(head) > binarySniffLen {
		head = head[:binarySniffLen]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// Collect drains a scan into a slice sorted by path.
func Collect(ch <-chan ScanResult) (files []*FileRecord, skipped []Skipped, err error) {
	for r := range ch {
		switch {
		case r.Error != nil:
			err = r.Error
		case r.File != nil:
			files = append(files, r.File)
		case r.Skipped != nil:
			skipped = append(skipped, *r.Skipped)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, skipped, err
}
