package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	minScore   float64
	content    bool
	semantic   bool
	jsonOutput bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Rank indexed files against a keyword query by TF-IDF cosine similarity.

Identifiers are split the same way as at index time, so "getUserById"
matches files mentioning "user" and "id". Use --semantic to rank by
embedding similarity when the index was built with an embedder.`,
		Example: `  amanidx search "request timeout"
  amanidx search parseConfig --limit 5 --content
  amanidx search "release checklist" --knowledge --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config, 10)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this value (default from config, 0.01)")
	cmd.Flags().BoolVarP(&opts.content, "content", "c", false, "Show the best matching lines of each file")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", false, "Rank by embedding similarity")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, root *rootOptions, query string, opts searchOptions) error {
	if opts.limit < 0 {
		return amerrors.ValidationError("--limit must not be negative", nil)
	}
	if opts.minScore < 0 || opts.minScore > 1 {
		return amerrors.ValidationError("--min-score must be between 0 and 1", nil)
	}

	p, err := root.loadProject()
	if err != nil {
		return err
	}
	setup := engineSetup{}
	if !opts.semantic {
		// Keyword search never needs a provider.
		setup.provider = "none"
	}
	s, err := root.openEngine(ctx, p, setup)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	start := time.Now()
	so := index.SearchOptions{Limit: opts.limit, MinScore: opts.minScore, IncludeContent: opts.content}
	search := s.engine.Search
	if opts.semantic {
		search = s.engine.SearchSemantic
	}
	resp, err := search(ctx, query, so)
	if err != nil {
		return err
	}
	slog.Debug("search_completed",
		slog.String("query", query),
		slog.Bool("semantic", opts.semantic),
		slog.Int("results", resp.Total),
		slog.Duration("duration", time.Since(start)))

	r := ui.NewSearchRenderer(cmd.OutOrStdout(), root.noColor)
	if opts.jsonOutput {
		return r.RenderJSON(resp.Results, resp.Indexed)
	}
	r.Render(query, resp.Results, resp.Indexed)
	return nil
}
