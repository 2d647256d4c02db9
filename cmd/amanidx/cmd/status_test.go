package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/ui"
)

func TestStatusCmd_BeforeIndex(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)

	out, err := run(t, context.Background(), "status", "--dir", dir, "--json")

	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.False(t, info.Indexed)
	assert.Zero(t, info.FileCount)
	assert.Zero(t, info.SnapshotSize)
}

func TestStatusCmd_AfterIndex(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)
	ctx := context.Background()
	_, err := run(t, ctx, "index", "--dir", dir, "--json")
	require.NoError(t, err)

	out, err := run(t, ctx, "status", "--dir", dir, "--json")

	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Indexed)
	assert.Equal(t, 3, info.FileCount)
	assert.Equal(t, "ready", info.State)
	assert.Equal(t, "code", info.Source)
	assert.Positive(t, info.SnapshotSize)
	assert.False(t, info.LastIndexed.IsZero())
}

func TestStatusCmd_Plain(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)

	out, err := run(t, context.Background(), "status", "--dir", dir)

	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
