package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amanidx/internal/gitignore"
)

// Operation is the kind of file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpGitignoreChange is emitted after a .gitignore edit has reloaded the
	// ignore rules. Newly ignored files drop out on the next rebuild.
	OpGitignoreChange
	// OpConfigChange is emitted when .amanidx.yaml changes.
	OpConfigChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change. Path is slash-separated and relative to
// the watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher produces file events for a directory tree.
type Watcher interface {
	// Start sets up watches under root and returns once events flow. The
	// watcher runs until Stop is called or ctx is cancelled.
	Start(ctx context.Context, root string) error
	// Stop releases resources. Safe to call more than once.
	Stop() error
	// Events is closed when the watcher stops.
	Events() <-chan FileEvent
	// Errors carries non-fatal errors. Closed when the watcher stops.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// PollInterval is used when fsnotify is unavailable. Default: 5s.
	PollInterval time.Duration
	// EventBufferSize is the event channel capacity. Default: 1000.
	EventBufferSize int
	// Rules filters events. Nil means only the built-in exclusions apply.
	Rules *gitignore.Rules
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

func DefaultOptions() Options {
	return Options{
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}

// ConfigFileNames are the project config names that yield OpConfigChange.
var ConfigFileNames = []string{".amanidx.yaml", ".amanidx.yml"}

func isConfigFile(rel string) bool {
	base := filepath.Base(rel)
	for _, n := range ConfigFileNames {
		if base == n {
			return true
		}
	}
	return false
}

func isGitignoreFile(rel string) bool {
	return filepath.Base(rel) == ".gitignore"
}

// ruleFilter wraps optional rules with the always-on exclusions.
type ruleFilter struct {
	rules *gitignore.Rules
}

func (f ruleFilter) ignored(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return true
	}
	if rel == ".git" || hasPrefixDir(rel, ".git") {
		return true
	}
	if f.rules == nil {
		return false
	}
	return f.rules.Ignored(rel, isDir)
}

// invalidate drops cached matchers for the directory holding a .gitignore.
func (f ruleFilter) invalidate(gitignoreRel string) {
	if f.rules == nil {
		return
	}
	dir := filepath.ToSlash(filepath.Dir(gitignoreRel))
	if dir == "." {
		dir = ""
	}
	f.rules.Invalidate(dir)
}

func hasPrefixDir(rel, dir string) bool {
	return len(rel) > len(dir) && rel[:len(dir)] == dir && rel[len(dir)] == '/'
}
