package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/output"
	"github.com/Aman-CERP/amanidx/internal/validation"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "validate <queries.yaml>",
		Short: "Check search quality against a query file",
		Long: `Run every query in a YAML query file against the current index and report
which expected files were found in the top results.

Tier 1 queries must pass; tier 2 queries are reported but do not fail the
run; negative queries must return nothing.`,
		Example: `  amanidx validate testdata/queries.yaml
  amanidx validate queries.yaml --limit 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := validation.LoadQueries(args[0])
			if err != nil {
				return amerrors.ValidationError("invalid query file", err)
			}

			ctx := cmd.Context()
			p, err := root.loadProject()
			if err != nil {
				return err
			}
			s, err := root.openEngine(ctx, p, engineSetup{})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if !s.engine.Status().Indexed {
				return amerrors.ValidationError("project is not indexed", nil).
					WithSuggestion("run 'amanidx index' first")
			}

			rep := validation.New(s.engine, limit).RunAll(ctx, qs)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				printReport(output.New(cmd.OutOrStdout(), root.noColor), rep)
			}
			if rep.Failed() {
				return amerrors.New(amerrors.ErrCodeInternal, "search validation failed", nil)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", validation.DefaultLimit, "How many results to search for an expected file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printReport(out *output.Writer, rep *validation.Report) {
	for _, r := range rep.Results {
		label := r.Spec.ID
		if r.Spec.Name != "" {
			label += " " + r.Spec.Name
		}
		switch {
		case r.Error != "":
			out.Errorf("%s: %s", label, r.Error)
		case r.Passed && r.MatchedAt >= 0:
			out.Successf("%s (rank %d)", label, r.MatchedAt+1)
		case r.Passed:
			out.Successf("%s", label)
		default:
			out.Warningf("%s: got %v", label, r.TopResults)
		}
	}
	out.Newline()
	out.Statusf("📊", "Tier 1: %d/%d  Tier 2: %d/%d  Negative: %d/%d",
		rep.Tier1.Passed, rep.Tier1.Total,
		rep.Tier2.Passed, rep.Tier2.Total,
		rep.Negative.Passed, rep.Negative.Total)
}
