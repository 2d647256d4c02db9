package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

func TestSearchRenderer_Render(t *testing.T) {
	// Given: two results, one with a snippet
	buf := &bytes.Buffer{}
	results := []tfidf.SearchResult{
		{URI: "file://a.go", Path: "a.go", Score: 0.91234, Snippet: "func Alpha() {}"},
		{URI: "file://b.go", Path: "b.go", Score: 0.5},
	}

	// When: rendering without colour
	NewSearchRenderer(buf, true).Render("alpha", results, true)

	// Then: results are numbered with scores and snippets
	out := buf.String()
	assert.Contains(t, out, " 1. a.go (0.912)")
	assert.Contains(t, out, " 2. b.go (0.500)")
	assert.Contains(t, out, "    func Alpha() {}")
}

func TestSearchRenderer_EmptyAndNotIndexed(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewSearchRenderer(buf, true)

	r.Render("zebra", nil, true)
	assert.Contains(t, buf.String(), `No results for "zebra"`)

	buf.Reset()
	r.Render("zebra", nil, false)
	assert.Contains(t, buf.String(), "Not indexed yet")
}

func TestSearchRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	results := []tfidf.SearchResult{{URI: "knowledge://guide.md", Path: "guide.md", Score: 0.4}}

	require.NoError(t, NewSearchRenderer(buf, false).RenderJSON(results, true))

	var parsed struct {
		Results []map[string]any `json:"results"`
		Total   int              `json:"total"`
		Indexed bool             `json:"indexed"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, 1, parsed.Total)
	assert.True(t, parsed.Indexed)
	assert.Equal(t, "knowledge://guide.md", parsed.Results[0]["uri"])
	assert.NotContains(t, parsed.Results[0], "snippet")
}
