package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event and never emits ANSI codes.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	errors   int
	warnings int
}

func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	round := func(d time.Duration) time.Duration { return d.Round(time.Millisecond) }

	if stats.CacheHit {
		_, _ = fmt.Fprintf(r.out, "Up to date: %d files unchanged (%s)\n", stats.Files, round(stats.Duration))
		return
	}

	mode := "incremental"
	if stats.FullRebuild {
		mode = "full rebuild"
	}
	_, _ = fmt.Fprintf(r.out, "Indexed %d files (%d changed, %d unchanged, %d deleted, %s) in %s",
		stats.Files, stats.Indexed, stats.Skipped, stats.Deleted, mode, round(stats.Duration))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "Corpus: %d documents, %d terms\n", stats.Documents, stats.Terms)

	if stats.Stages.any() {
		_, _ = fmt.Fprintln(r.out, "Stages:")
		_, _ = fmt.Fprintf(r.out, "  Scan:    %s\n", round(stats.Stages.Scan))
		_, _ = fmt.Fprintf(r.out, "  Detect:  %s\n", round(stats.Stages.Detect))
		_, _ = fmt.Fprintf(r.out, "  Build:   %s\n", round(stats.Stages.Build))
		if stats.Stages.Embed > 0 {
			_, _ = fmt.Fprintf(r.out, "  Embed:   %s (%d vectors)\n", round(stats.Stages.Embed), stats.Vectors)
		}
		_, _ = fmt.Fprintf(r.out, "  Persist: %s\n", round(stats.Stages.Persist))
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

func (r *PlainRenderer) Stop() error { return nil }

// Counts returns how many errors and warnings were reported.
func (r *PlainRenderer) Counts() (errors, warnings int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors, r.warnings
}
