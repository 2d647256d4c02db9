package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_NothingToServe(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)

	_, err := run(t, context.Background(), "serve", "--dir", dir, "--stdio=false")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to serve")
}

func TestServeCmd_HTTPOnlyStopsOnCancel(t *testing.T) {
	isolate(t)
	dir := writeCorpus(t, corpus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(t, ctx, "serve", "--dir", dir, "--stdio=false", "--http", "127.0.0.1:0", "--no-watch", "--no-index")

	assert.NoError(t, err)
}
