package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/mcp"
)

// connect serves s on an in-memory transport and returns a client session.
func connect(t *testing.T, ctx context.Context, s *mcp.Server) *sdkmcp.ClientSession {
	t.Helper()
	clientT, serverT := sdkmcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "integration", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callSearch(t *testing.T, ctx context.Context, cs *sdkmcp.ClientSession, query string) mcp.SearchOutput {
	t.Helper()
	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": query},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out mcp.SearchOutput
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWatcherChangesReachMCPClients(t *testing.T) {
	// Given: an engine served over MCP with the watcher running
	root := t.TempDir()
	writeFiles(t, root, corpus)
	opts := index.Options{RootDir: root}
	fastWatch(&opts)
	engine := newEngine(t, opts)

	srv, err := mcp.NewServer(engine, mcp.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cs := connect(t, ctx, srv)

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: "index", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NoError(t, engine.StartWatching(ctx))
	t.Cleanup(func() { _ = engine.StopWatching() })

	before := callSearch(t, ctx, cs, "zebra")
	assert.True(t, before.Indexed)
	assert.Empty(t, before.Results)

	// When: a file is added on disk
	writeFiles(t, root, map[string]string{"animals/zebra.md": "zebra stripes zebra"})

	// Then: the MCP client sees it without asking for a reindex
	require.Eventually(t, func() bool {
		out := callSearch(t, ctx, cs, "zebra")
		return len(out.Results) == 1 && out.Results[0].Path == "animals/zebra.md"
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcherDeletionReachesMCPClients(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, corpus)
	opts := index.Options{RootDir: root}
	fastWatch(&opts)
	engine := newEngine(t, opts)
	_, err := engine.Index(context.Background(), index.IndexOptions{})
	require.NoError(t, err)

	srv, err := mcp.NewServer(engine, mcp.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cs := connect(t, ctx, srv)
	require.NoError(t, engine.StartWatching(ctx))
	t.Cleanup(func() { _ = engine.StopWatching() })

	require.NotEmpty(t, callSearch(t, ctx, cs, "bird").Results)

	// When: the only file mentioning "bird" is removed
	removeFile(t, root, "animals/birds.md")

	// Then: searches stop returning it
	require.Eventually(t, func() bool {
		return len(callSearch(t, ctx, cs, "bird").Results) == 0
	}, 5*time.Second, 25*time.Millisecond)
}
