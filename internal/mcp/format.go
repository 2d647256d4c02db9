package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// FormatSearchResults renders a response as markdown for the tool's text
// content.
func FormatSearchResults(query string, resp *index.SearchResponse, indexing bool) string {
	var sb strings.Builder
	if resp == nil || !resp.Indexed {
		sb.WriteString("## Not Indexed\n\nNo index exists yet. Call the `index` tool first.")
		if indexing {
			sb.WriteString(" A run is already in progress.")
		}
		return sb.String()
	}
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", resp.Total)
	if resp.Total != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	if indexing {
		sb.WriteString("_Reindexing in progress; results reflect the previous snapshot._\n\n")
	}

	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n\n", i+1, r.Path, r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", fenceLanguage(r.Path), r.Snippet)
		}
	}
	return sb.String()
}

// fenceLanguage picks the code fence hint from the file extension.
func fenceLanguage(path string) string {
	mime := MimeTypeForPath(path)
	switch {
	case strings.HasPrefix(mime, "text/x-"):
		return strings.TrimPrefix(mime, "text/x-")
	case mime == "text/markdown":
		return "markdown"
	case mime == "text/plain":
		return "text"
	default:
		return mime[strings.LastIndex(mime, "/")+1:]
	}
}

func toSearchOutput(resp *index.SearchResponse) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(resp.Results)), Total: resp.Total, Indexed: resp.Indexed}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResultOutput{URI: r.URI, Path: r.Path, Score: r.Score, Snippet: r.Snippet})
	}
	return out
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, lo), hi)
}
