package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// followInterval is how often Follow polls the file for new lines.
const followInterval = 100 * time.Millisecond

// maxLineSize bounds a single log record.
const maxLineSize = 1024 * 1024

// Entry is one parsed JSON log record. Lines that are not JSON keep only
// Raw and have Valid unset.
type Entry struct {
	Time  time.Time
	Level slog.Level
	Msg   string
	Attrs map[string]any
	Raw   string
	Valid bool
}

// Filter selects which entries a Viewer shows.
type Filter struct {
	// MinLevel drops records below it. The zero value keeps info and up,
	// so callers wanting debug records must set it.
	MinLevel slog.Level
	// Pattern, when set, must match the raw line.
	Pattern *regexp.Regexp
}

// Viewer reads the JSON log files written by Setup.
type Viewer struct {
	filter  Filter
	noColor bool
}

func NewViewer(filter Filter, noColor bool) *Viewer {
	return &Viewer{filter: filter, noColor: noColor}
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Ring of the last n lines; the log is rotated so the file stays small.
	ring := make([]string, 0, max(n, 0))
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	entries := make([]Entry, 0, len(ring))
	for _, line := range ring {
		if e := ParseEntry(line); v.Match(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow sends entries appended to path after the call until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, out chan<- Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	r := bufio.NewReader(f)
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			chunk, err := r.ReadString('\n')
			partial += chunk
			if err != nil {
				// Keep the unterminated tail for the next tick.
				break
			}
			line := strings.TrimRight(partial, "\r\n")
			partial = ""
			if line == "" {
				continue
			}
			e := ParseEntry(line)
			if !v.Match(e) {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Match reports whether e passes the filter. Non-JSON lines pass the level
// check so stack traces and panics are never hidden.
func (v *Viewer) Match(e Entry) bool {
	if e.Valid && e.Level < v.filter.MinLevel {
		return false
	}
	if v.filter.Pattern != nil && !v.filter.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Format renders e as "15:04:05.000 LEVEL msg key=value ...". Attributes
// are sorted by key.
func (v *Viewer) Format(e Entry) string {
	if !e.Valid {
		return e.Raw
	}

	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.level(e.Level))
	b.WriteByte(' ')
	b.WriteString(e.Msg)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// Print writes each entry on its own line.
func (v *Viewer) Print(w io.Writer, entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(w, v.Format(e))
	}
}

func (v *Viewer) level(l slog.Level) string {
	name := fmt.Sprintf("%-5s", l.String())
	if v.noColor {
		return name
	}
	var code string
	switch {
	case l >= slog.LevelError:
		code = "31"
	case l >= slog.LevelWarn:
		code = "33"
	case l >= slog.LevelInfo:
		code = "32"
	default:
		code = "90"
	}
	return "\033[" + code + "m" + name + "\033[0m"
}

// ParseEntry decodes one line written by the JSON handler.
func ParseEntry(line string) Entry {
	e := Entry{Raw: line}
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.Valid = true

	if s, ok := data[slog.TimeKey].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
		}
	}
	if s, ok := data[slog.LevelKey].(string); ok {
		e.Level = ParseLevel(s)
	}
	if s, ok := data[slog.MessageKey].(string); ok {
		e.Msg = s
	}
	delete(data, slog.TimeKey)
	delete(data, slog.LevelKey)
	delete(data, slog.MessageKey)
	e.Attrs = data
	return e
}
