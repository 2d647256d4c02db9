package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/async"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show whether the project is indexed, how many files the snapshot holds,
when it was built and how much disk it uses.`,
		Example: `  amanidx status
  amanidx status --knowledge --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := collectStatus(cmd.Context(), root)
			if err != nil {
				return err
			}
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), root.noColor)
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func collectStatus(ctx context.Context, root *rootOptions) (ui.StatusInfo, error) {
	p, err := root.loadProject()
	if err != nil {
		return ui.StatusInfo{}, err
	}
	// Status never probes the embedding provider.
	s, err := root.openEngine(ctx, p, engineSetup{provider: "none"})
	if err != nil {
		return ui.StatusInfo{}, err
	}
	defer func() { _ = s.Close() }()

	stats, err := s.engine.CacheStats(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	st := s.engine.Status()

	info := ui.StatusInfo{
		Root:         s.engine.Root(),
		Source:       string(s.engine.Source()),
		Indexed:      stats.Exists,
		FileCount:    stats.FileCount,
		LastIndexed:  stats.IndexedAt,
		State:        st.State,
		Stage:        st.Stage,
		Progress:     st.Progress,
		LastError:    st.LastError,
		SnapshotSize: fileSize(filepath.Join(s.engine.DataDir(), index.SnapshotFile)),
		VectorSize:   fileSize(filepath.Join(s.engine.DataDir(), index.VectorFile)),
		WatchState:   st.WatchState,
	}
	if stats.Exists && info.State == string(async.StatusIdle) {
		info.State = string(async.StatusReady)
	}
	if async.HasIncompleteRun(s.engine.DataDir()) {
		info.LastError = "the last background index run did not finish; run 'amanidx index'"
	}
	if provider := p.cfg.Embeddings.Provider; provider != "" && provider != "none" {
		info.EmbedderModel = provider
		if p.cfg.Embeddings.Model != "" {
			info.EmbedderModel += "/" + p.cfg.Embeddings.Model
		}
	}
	return info, nil
}

// fileSize returns 0 for missing files.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
