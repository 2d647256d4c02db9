package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/pkg/version"
)

// ServerName is reported in the MCP implementation info.
const ServerName = "amanidx"

// Engine is the part of *index.Engine the tools call.
type Engine interface {
	Root() string
	Source() index.Source
	Index(ctx context.Context, opts index.IndexOptions) (*index.IndexResult, error)
	Search(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
	SearchSemantic(ctx context.Context, query string, opts index.SearchOptions) (*index.SearchResponse, error)
	Status() index.Status
	CacheStats(ctx context.Context) (store.CacheStats, error)
	ClearCache(ctx context.Context) error
	FileContent(ctx context.Context, path string) (string, bool, error)
}

// Options configures NewServer. All fields are optional.
type Options struct {
	// Embedder is reported by index_status; the engine owns the one it uses.
	Embedder     embed.Embedder
	QueryMetrics *telemetry.QueryMetrics
	Logger       *slog.Logger
}

// Server bridges MCP clients and an index engine.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	embedder embed.Embedder
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Keyword search over the indexed files, ranked by TF-IDF cosine similarity. Set semantic=true to rank by embeddings when an embedder is configured.",
	},
	{
		Name:        "index",
		Description: "Bring the index up to date. Only changed files are reprocessed unless force is set.",
	},
	{
		Name:        "index_status",
		Description: "Report whether an index exists, whether a run is active and which embedder is configured.",
	},
	{
		Name:        "clear_cache",
		Description: "Delete the stored index. The next index call rebuilds from scratch.",
	},
}

// NewServer creates a new MCP server.
func NewServer(engine Engine, opts Options) (*Server, error) {
	if engine == nil {
		return nil, errors.New("index engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		embedder: opts.Embedder,
		metrics:  opts.QueryMetrics,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.handleIndex)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.handleIndexStatus)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.handleClearCache)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if input.MinScore < 0 || input.MinScore > 1 {
		return nil, SearchOutput{}, NewInvalidParamsError("min_score must be between 0 and 1")
	}

	start := time.Now()
	requestID := generateRequestID()
	opts := index.SearchOptions{
		Limit:          clampLimit(input.Limit, 10, 1, 50),
		MinScore:       input.MinScore,
		IncludeContent: input.IncludeContent,
	}

	search := s.engine.Search
	if input.Semantic {
		search = s.engine.SearchSemantic
	}
	resp, err := search(ctx, input.Query, opts)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Bool("semantic", input.Semantic),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", resp.Total))

	text := FormatSearchResults(input.Query, resp, s.engine.Status().IsIndexing)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, toSearchOutput(resp), nil
}

func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (
	*mcp.CallToolResult,
	IndexOutput,
	error,
) {
	requestID := generateRequestID()
	s.logger.Info("index started", slog.String("request_id", requestID), slog.Bool("force", input.Force))

	res, err := s.engine.Index(ctx, index.IndexOptions{Force: input.Force})
	if err != nil {
		s.logger.Error("index failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, IndexOutput{}, MapError(err)
	}
	return nil, IndexOutput{
		RunID:      res.RunID,
		Stats:      res.Stats,
		DurationMS: res.Duration.Milliseconds(),
		IndexedAt:  res.IndexedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) indexStatus(ctx context.Context) (IndexStatusOutput, error) {
	stats, err := s.engine.CacheStats(ctx)
	if err != nil {
		return IndexStatusOutput{}, err
	}
	out := IndexStatusOutput{
		Root:   s.engine.Root(),
		Source: string(s.engine.Source()),
		Status: s.engine.Status(),
		Cache:  CacheInfo{Exists: stats.Exists, FileCount: stats.FileCount},
		Embeddings: EmbeddingInfo{
			Status: "disabled",
		},
	}
	if !stats.IndexedAt.IsZero() {
		out.Cache.IndexedAt = stats.IndexedAt.Format(time.RFC3339)
	}
	if s.embedder != nil {
		out.Embeddings.Enabled = true
		out.Embeddings.Model = s.embedder.ModelName()
		out.Embeddings.Dimensions = s.embedder.Dimensions()
		out.Embeddings.Status = "unavailable"
		if s.embedder.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}
	return out, nil
}

func (s *Server) handleClearCache(ctx context.Context, _ *mcp.CallToolRequest, _ ClearCacheInput) (
	*mcp.CallToolResult,
	ClearCacheOutput,
	error,
) {
	if err := s.engine.ClearCache(ctx); err != nil {
		return nil, ClearCacheOutput{}, MapError(err)
	}
	s.logger.Info("cache cleared via MCP")
	return nil, ClearCacheOutput{Cleared: true}, nil
}

// Serve runs the server on transport until ctx is done or the client
// disconnects. The CLI passes &mcp.StdioTransport{}.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("Starting MCP server", slog.String("root", s.engine.Root()))
	err := s.mcp.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
