// Package change classifies a fresh scan against the last saved snapshot.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/store"
)

// DefaultThreshold is the relative file-count drift above which the
// previous snapshot is not trusted.
const DefaultThreshold = 0.20

// Type of a single file change. Order matters for sorting: deletions are
// listed first.
type Type int

const (
	Added Type = iota
	Modified
	Deleted
)

func (t Type) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is one classified path.
type FileChange struct {
	Path string
	Type Type
}

// DetectOptions tunes Detect.
type DetectOptions struct {
	// Force marks every scanned file as changed.
	Force bool
	// Threshold defaults to DefaultThreshold. Negative disables the check.
	Threshold float64
	// Now stamps FileEntry.IndexedAt for changed files.
	Now time.Time
}

// Changes is the outcome of Detect. Path lists are sorted.
type Changes struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged int

	// Entries reflects the current scan and is what the next snapshot stores.
	Entries map[string]*store.FileEntry

	// FullRebuild is set when the previous snapshot was discarded.
	FullRebuild bool
	Reason      string
}

// Empty reports whether nothing was added, modified or deleted.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Count is the number of changed paths.
func (c *Changes) Count() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// List flattens the changes, deletions first, then by path.
func (c *Changes) List() []FileChange {
	out := make([]FileChange, 0, c.Count())
	for _, p := range c.Deleted {
		out = append(out, FileChange{Path: p, Type: Deleted})
	}
	for _, p := range c.Modified {
		out = append(out, FileChange{Path: p, Type: Modified})
	}
	for _, p := range c.Added {
		out = append(out, FileChange{Path: p, Type: Added})
	}
	return out
}

// HashContent is hex(sha256(content)).
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Detect compares records to prev, which may be nil.
//
// When prev holds c > 0 files and either the file count drifted by more than
// Threshold*c or more than Threshold*c files appeared or vanished, prev is
// ignored and every record is reported as added.
func Detect(records []*scanner.FileRecord, prev *store.Snapshot, opts DetectOptions) *Changes {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var prevFiles map[string]*store.FileEntry
	if prev != nil {
		prevFiles = prev.Files
	}

	out := &Changes{Entries: make(map[string]*store.FileEntry, len(records))}
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		seen[r.Path] = struct{}{}
		entry := &store.FileEntry{
			Path:        r.Path,
			ModTime:     r.ModTime,
			ContentHash: HashContent(r.Content),
			Size:        r.Size,
			Language:    r.Language,
			IndexedAt:   now,
		}

		old, existed := prevFiles[r.Path]
		switch {
		case !existed:
			out.Added = append(out.Added, r.Path)
		case opts.Force || old.ContentHash != entry.ContentHash:
			out.Modified = append(out.Modified, r.Path)
		default:
			out.Unchanged++
			entry.IndexedAt = old.IndexedAt
		}
		out.Entries[r.Path] = entry
	}

	for p := range prevFiles {
		if _, ok := seen[p]; !ok {
			out.Deleted = append(out.Deleted, p)
		}
	}

	if reason, unsafe := exceedsThreshold(len(prevFiles), len(records), len(out.Added)+len(out.Deleted), threshold); unsafe {
		out.FullRebuild = true
		out.Reason = reason
		out.Added = out.Added[:0]
		for p, e := range out.Entries {
			out.Added = append(out.Added, p)
			e.IndexedAt = now
		}
		out.Modified = nil
		out.Deleted = nil
		out.Unchanged = 0
	} else if opts.Force && len(prevFiles) > 0 {
		out.Reason = "forced"
	}

	sort.Strings(out.Added)
	sort.Strings(out.Modified)
	sort.Strings(out.Deleted)
	return out
}

func exceedsThreshold(cached, current, churn int, threshold float64) (string, bool) {
	if cached == 0 || threshold < 0 {
		return "", false
	}
	c := float64(cached)
	drift := float64(current - cached)
	if drift < 0 {
		drift = -drift
	}
	if drift/c > threshold {
		return fmt.Sprintf("file count changed from %d to %d", cached, current), true
	}
	if float64(churn)/c > threshold {
		return fmt.Sprintf("%d of %d files added or removed", churn, cached), true
	}
	return "", false
}
