package cmd

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/config"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can index the project",
		Long: `Run preflight checks: configuration, free disk space, write access to the
project, file descriptor limit, the embedding backend and the stored index.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := runDoctor(cmd.Context(), root)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Status string                  `json:"status"`
					Checks []preflight.CheckResult `json:"checks"`
				}{preflight.Summary(results), results}); err != nil {
					return err
				}
			} else {
				preflight.Print(cmd.OutOrStdout(), results)
			}
			if preflight.HasCriticalFailures(results) {
				return amerrors.New(amerrors.ErrCodeInternal, "preflight checks failed", nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(ctx context.Context, root *rootOptions) ([]preflight.CheckResult, error) {
	opts := preflight.Options{}

	p, err := root.loadProject()
	switch {
	case err == nil:
		opts.Root = p.root
	case amerrors.GetCode(err) == amerrors.ErrCodeConfigInvalid:
		// A broken config is a finding, not a reason to stop checking.
		opts.ConfigErr = err
		abs, absErr := filepath.Abs(root.dir)
		if absErr != nil {
			return nil, absErr
		}
		if opts.Root, err = config.FindProjectRoot(abs); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	opts.DataDir = filepath.Join(opts.Root, index.DefaultDataDir)

	if p != nil {
		if root.knowledge {
			opts.DataDir = filepath.Join(opts.Root, index.DefaultDataDir, "knowledge")
		}
		opts.ProbeEmbedder = embedderProbe(p)
	}

	return preflight.New(opts).RunAll(ctx), nil
}

// embedderProbe returns nil when embeddings are disabled.
func embedderProbe(p *project) func(context.Context) error {
	switch p.cfg.Embeddings.Provider {
	case "", "none":
		return nil
	}
	return func(ctx context.Context) error {
		e, err := newEmbedder(ctx, p.cfg, engineSetup{})
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()
		_, err = e.Embed(ctx, "amanidx preflight")
		return err
	}
}
