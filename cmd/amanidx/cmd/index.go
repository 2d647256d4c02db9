package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

type indexOptions struct {
	force      bool
	embedder   string
	noTUI      bool
	jsonOutput bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project for searching",
		Long: `Scan the project, detect what changed since the last run and rebuild
the TF-IDF model. Unchanged trees finish immediately from the cache.

When more than a fifth of the indexed files changed, or the stored snapshot
cannot be trusted, the whole index is rebuilt from scratch.

Embedding backends:
  none     keyword search only (default)
  static   offline hash-based vectors
  ollama   local Ollama server
  openai   OpenAI-compatible API (key from OPENAI_API_KEY)`,
		Example: `  # Incremental index of the current project
  amanidx index

  # Reindex every file
  amanidx index --force

  # Index the notes folder with offline vectors
  amanidx index --knowledge --embedder static`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Reindex every file even if unchanged")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedding backend: none, static, ollama or openai (overrides config)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run result as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts indexOptions) error {
	p, err := root.loadProject()
	if err != nil {
		return err
	}
	s, err := root.openEngine(ctx, p, engineSetup{provider: opts.embedder})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var renderer ui.Renderer
	if !opts.jsonOutput {
		uiCfg := ui.NewConfig(cmd.OutOrStdout(),
			ui.WithForcePlain(opts.noTUI),
			ui.WithNoColor(root.noColor),
			ui.WithProjectDir(s.engine.Root()))
		renderer = ui.NewRenderer(uiCfg)
		if err := renderer.Start(ctx); err != nil {
			slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
		}
		defer func() { _ = renderer.Stop() }()
	}

	res, err := s.engine.Index(ctx, index.IndexOptions{Force: opts.force, Renderer: renderer})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return nil
}
