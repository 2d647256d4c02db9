package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/index"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var embedder string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index fresh as files change",
		Long: `Bring the index up to date, then watch the project and reindex after
each quiet period (1s for code, 300ms for the knowledge source by default).

Falls back to polling when native file notifications are unavailable.
Press Ctrl+C to stop.`,
		Example: `  amanidx watch
  amanidx watch --knowledge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := root.loadProject()
			if err != nil {
				return err
			}
			s, err := root.openEngine(ctx, p, engineSetup{provider: embedder})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := s.engine.Index(ctx, index.IndexOptions{})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Indexed %d files (%d changed) in %s\n",
				res.Stats.TotalFiles, res.Stats.IndexedFiles, res.Duration.Round(time.Millisecond))

			if err := s.engine.StartWatching(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Watching %s. Press Ctrl+C to stop.\n", s.engine.Root())

			<-ctx.Done()
			_, _ = fmt.Fprintln(w, "Stopping watcher...")
			return s.engine.StopWatching()
		},
	}

	cmd.Flags().StringVar(&embedder, "embedder", "", "Embedding backend: none, static, ollama or openai (overrides config)")
	return cmd
}
