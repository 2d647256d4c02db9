package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is what `amanidx status` prints.
type StatusInfo struct {
	Root        string    `json:"root"`
	Source      string    `json:"source"`
	Indexed     bool      `json:"indexed"`
	FileCount   int       `json:"file_count"`
	LastIndexed time.Time `json:"last_indexed"`

	// State is the indexing status: idle, indexing, ready or error.
	State     string  `json:"state"`
	Stage     string  `json:"stage,omitempty"`
	Progress  float64 `json:"progress"`
	LastError string  `json:"last_error,omitempty"`

	SnapshotSize int64 `json:"snapshot_size"`
	VectorSize   int64 `json:"vector_size"`

	EmbedderModel string `json:"embedder_model,omitempty"`
	WatchState    string `json:"watch_state,omitempty"`
}

// StatusRenderer prints StatusInfo as text or JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

func (r *StatusRenderer) Render(info StatusInfo) error {
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	w("%s\n\n", r.styles.Header.Render("Index: "+info.Root))
	w("  Source:       %s\n", info.Source)
	w("  State:        %s\n", r.renderState(info.State))
	if info.Stage != "" {
		w("  Stage:        %s (%.0f%%)\n", info.Stage, info.Progress)
	}
	if !info.Indexed {
		w("  Files:        %s\n", r.styles.Warning.Render("not indexed"))
	} else {
		w("  Files:        %d\n", info.FileCount)
	}
	if !info.LastIndexed.IsZero() {
		w("  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	if info.LastError != "" {
		w("  Last error:   %s\n", r.styles.Error.Render(info.LastError))
	}
	w("\n  Storage:\n")
	w("    Snapshot: %s\n", FormatBytes(info.SnapshotSize))
	w("    Vectors:  %s\n", FormatBytes(info.VectorSize))
	if info.EmbedderModel != "" {
		w("\n  Embedder: %s\n", info.EmbedderModel)
	}
	if info.WatchState != "" {
		w("  Watcher:  %s\n", info.WatchState)
	}
	return nil
}

func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready":
		return r.styles.Success.Render(state)
	case "indexing":
		return r.styles.Active.Render(state)
	case "error":
		return r.styles.Error.Render(state)
	default:
		return state
	}
}

// formatTime prints recent times relative to now.
func formatTime(t time.Time) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch diff := time.Since(t); {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes uses binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}
