package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.amanidx/logs, or a temp dir when $HOME is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanidx", "logs")
	}
	return filepath.Join(home, ".amanidx", "logs")
}

func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amanidx.log")
}
