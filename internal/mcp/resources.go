package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

const (
	// FileURIPrefix addresses indexed files: amanidx://file/<relative path>.
	FileURIPrefix = "amanidx://file/"

	QueryMetricsURI = "amanidx://query_metrics"
)

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "indexed_file",
		URITemplate: FileURIPrefix + "{+path}",
		Description: "Text of a file as stored in the last committed index snapshot",
	}, s.handleFileResource)

	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         QueryMetricsURI,
		Description: "Query pattern telemetry for this session",
		MIMEType:    "application/json",
	}, s.handleQueryMetrics)
}

// SetQueryMetrics replaces the collector behind the query_metrics resource.
func (s *Server) SetQueryMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Server) handleFileResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	rel, ok := strings.CutPrefix(uri, FileURIPrefix)
	if !ok || !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", uri))
	}

	content, found, err := s.engine.FileContent(ctx, rel)
	if err != nil {
		return nil, MapError(err)
	}
	if !found {
		return nil, NewResourceNotFoundError(uri)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: MimeTypeForPath(rel), Text: content}},
	}, nil
}

// isValidPath rejects absolute paths and anything escaping the root.
func isValidPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, part := range strings.Split(path.Clean(p), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	summary := metrics.Summary()
	content, err := json.MarshalIndent(struct {
		telemetry.QuerySummary
		ZeroResultPct float64 `json:"zero_result_pct"`
	}{summary, summary.ZeroResultPercentage()}, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: QueryMetricsURI, MIMEType: "application/json", Text: string(content)}},
	}, nil
}
