package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or delete the stored index",
	}
	cmd.AddCommand(newCacheStatsCmd(root))
	cmd.AddCommand(newCacheClearCmd(root))
	return cmd
}

type cacheStatsOutput struct {
	Exists    bool       `json:"exists"`
	FileCount int        `json:"file_count"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
	DataDir   string     `json:"data_dir"`
}

func newCacheStatsCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the stored snapshot holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := root.loadProject()
			if err != nil {
				return err
			}
			s, err := root.openEngine(ctx, p, engineSetup{provider: "none"})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			stats, err := s.engine.CacheStats(ctx)
			if err != nil {
				return err
			}
			out := cacheStatsOutput{Exists: stats.Exists, FileCount: stats.FileCount, DataDir: s.engine.DataDir()}
			if !stats.IndexedAt.IsZero() {
				out.IndexedAt = &stats.IndexedAt
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Data dir:   %s\n", out.DataDir)
			_, _ = fmt.Fprintf(w, "Exists:     %t\n", out.Exists)
			_, _ = fmt.Fprintf(w, "Files:      %d\n", out.FileCount)
			if out.IndexedAt != nil {
				_, _ = fmt.Fprintf(w, "Indexed at: %s\n", out.IndexedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCacheClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored index",
		Long: `Delete the snapshot and vector index. The next 'amanidx index' rebuilds
from scratch. Fails while another run holds the index lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := root.loadProject()
			if err != nil {
				return err
			}
			s, err := root.openEngine(ctx, p, engineSetup{provider: "none"})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.engine.ClearCache(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared index in %s\n", s.engine.DataDir())
			return nil
		},
	}
}
