package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/validation"
)

const passingQueries = `
tier1:
  - id: T1-1
    name: cats
    query: cat
    expected: [animals/cats.md]
  - id: T1-2
    query: parser
    expected: [src/]
negative:
  - id: N-1
    query: zzqx vorpal
`

func writeQueryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCmd_Passes(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)
	ctx := context.Background()
	_, err := run(t, ctx, "index", "--dir", dir, "--json")
	require.NoError(t, err)

	out, err := run(t, ctx, "validate", writeQueryFile(t, passingQueries), "--dir", dir, "--json")

	require.NoError(t, err)
	var rep validation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, validation.TierSummary{Passed: 2, Total: 2}, rep.Tier1)
	assert.Equal(t, validation.TierSummary{Passed: 1, Total: 1}, rep.Negative)
}

func TestValidateCmd_FailsOnMissedTier1(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)
	ctx := context.Background()
	_, err := run(t, ctx, "index", "--dir", dir, "--json")
	require.NoError(t, err)
	queries := "tier1:\n  - id: T1-9\n    query: bird\n    expected: [src/main.go]\n"

	out, err := run(t, ctx, "validate", writeQueryFile(t, queries), "--dir", dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search validation failed")
	assert.Contains(t, out, "T1-9")
	assert.Contains(t, out, "Tier 1: 0/1")
}

func TestValidateCmd_NotIndexed(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)

	_, err := run(t, context.Background(), "validate", writeQueryFile(t, passingQueries), "--dir", dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not indexed")
}

func TestValidateCmd_BadQueryFile(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)

	_, err := run(t, context.Background(), "validate", writeQueryFile(t, "tier1: ["), "--dir", dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_401_INVALID_INPUT")
}
