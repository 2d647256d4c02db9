package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsCmd(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "amanidx.log")
	lines := []string{
		`{"time":"2026-01-02T03:04:05Z","level":"DEBUG","msg":"scan_started"}`,
		`{"time":"2026-01-02T03:04:06Z","level":"INFO","msg":"index_run","files":3}`,
		`{"time":"2026-01-02T03:04:07Z","level":"ERROR","msg":"persist failed"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"default level", nil, []string{"index_run files=3", "persist failed"}, []string{"scan_started"}},
		{"debug", []string{"--level", "debug"}, []string{"scan_started"}, nil},
		{"errors", []string{"--level", "error"}, []string{"persist failed"}, []string{"index_run"}},
		{"last line", []string{"-n", "1"}, []string{"persist failed"}, []string{"index_run"}},
		{"filter", []string{"--filter", "index_"}, []string{"index_run"}, []string{"persist failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--file", path}, tt.args...)
			out, err := run(t, ctx, args...)

			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, out, nw)
			}
		})
	}
}

func TestLogsCmd_Errors(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	_, err := run(t, ctx, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file")

	path := filepath.Join(t.TempDir(), "amanidx.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = run(t, ctx, "logs", "--file", path, "--filter", "(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_401_INVALID_INPUT")
}
