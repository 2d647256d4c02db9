// Package cmd provides the CLI commands for amanidx.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/profiling"
	"github.com/Aman-CERP/amanidx/internal/ui"
	"github.com/Aman-CERP/amanidx/pkg/version"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	dir       string
	knowledge bool
	debug     bool
	noColor   bool
	profile   profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the amanidx CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanidx",
		Short: "Incremental keyword index for source trees and notes",
		Long: `amanidx indexes a source tree or a folder of markdown notes into a
TF-IDF model, keeps it fresh as files change and answers ranked keyword
queries. Optional embeddings add a semantic search mode.

Run 'amanidx index' in a project, then 'amanidx search <query>'.
'amanidx serve' exposes the same index to MCP clients over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanidx version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVarP(&opts.knowledge, "knowledge", "k", false, "Use the knowledge source (markdown notes in knowledge.dir)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.amanidx/logs/")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", ui.DetectNoColor(), "Disable colored output")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = opts.start
	cmd.PersistentPostRunE = opts.stop

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start installs the default logger and any requested profiles. Without
// --debug only warnings reach stderr; serve replaces this with a
// stdio-safe logger.
func (o *rootOptions) start(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if o.debug {
		cfg = logging.DebugConfig()
	}
	if err := o.installLogging(cfg); err != nil {
		return err
	}
	if o.profile.Enabled() {
		p, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = p
	}
	return nil
}

func (o *rootOptions) installLogging(cfg logging.Config) error {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	cleanup, err := logging.Install(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	if o.debug {
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func (o *rootOptions) stop(_ *cobra.Command, _ []string) error {
	var err error
	if o.profiler != nil {
		err = o.profiler.Stop()
		o.profiler = nil
	}
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints failures with their hint.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
	}
	return err
}
