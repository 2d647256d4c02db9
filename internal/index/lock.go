package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile guards a data directory against concurrent runs from other
// processes. The in-process busy flag covers callers inside one engine.
const LockFile = "index.lock"

// FileLock is an advisory cross-process lock on <dir>/index.lock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func NewFileLock(dir string) *FileLock {
	p := filepath.Join(dir, LockFile)
	return &FileLock{path: p, flock: flock.New(p)}
}

// TryLock returns false without blocking when another process holds the lock.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock is a no-op when the lock is not held.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *FileLock) Path() string { return l.path }

func (l *FileLock) IsLocked() bool { return l.locked }
