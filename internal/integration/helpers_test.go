// Package integration exercises the engine together with its transports:
// the watcher feeding the MCP server, the HTTP API and both SQLite drivers.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/index"
)

var corpus = map[string]string{
	"animals/cats.md":  "cat dog cat",
	"animals/birds.md": "dog bird",
	"docs/guide.md":    "# Guide\n\nHow to configure the parser.\n",
	"src/main.go":      "package main\n\nfunc main() {\n\tprintln(\"hello parser\")\n}\n",
	"src/util.go":      "package main\n\nfunc parseConfig() {}\n",
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newEngine(t *testing.T, opts index.Options) *index.Engine {
	t.Helper()
	e, err := index.New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// fastWatch makes watcher-driven tests finish quickly and deterministically.
func fastWatch(o *index.Options) {
	o.DebounceWindow = 50 * time.Millisecond
	o.ForcePolling = true
	o.PollInterval = 20 * time.Millisecond
}

func paths(resp *index.SearchResponse) []string {
	out := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.Path)
	}
	return out
}

func removeFile(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(rel))))
}
