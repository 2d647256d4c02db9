package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

// SearchRenderer prints ranked results.
type SearchRenderer struct {
	out    io.Writer
	styles Styles
}

func NewSearchRenderer(out io.Writer, noColor bool) *SearchRenderer {
	return &SearchRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints one block per result: rank, path, score and, when present,
// the snippet indented underneath.
func (r *SearchRenderer) Render(query string, results []tfidf.SearchResult, indexed bool) {
	if !indexed {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render("Not indexed yet. Run `amanidx index` first."))
		return
	}
	if len(results) == 0 {
		_, _ = fmt.Fprintf(r.out, "No results for %q\n", query)
		return
	}
	for i, res := range results {
		_, _ = fmt.Fprintf(r.out, "%2d. %s %s\n", i+1,
			r.styles.Path.Render(res.Path),
			r.styles.Score.Render(fmt.Sprintf("(%.3f)", res.Score)))
		if s := strings.TrimSpace(res.Snippet); s != "" {
			_, _ = fmt.Fprintln(r.out, r.styles.Snippet.Render(s))
		}
	}
}

// RenderJSON writes the results array with its total.
func (r *SearchRenderer) RenderJSON(results []tfidf.SearchResult, indexed bool) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Results []tfidf.SearchResult `json:"results"`
		Total   int                  `json:"total"`
		Indexed bool                 `json:"indexed"`
	}{results, len(results), indexed})
}
