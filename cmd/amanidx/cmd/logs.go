package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View amanidx logs",
		Long: `Show the JSON log written by 'amanidx serve' and by any command run with
--debug. By default the last 50 records at info level and above are shown.`,
		Example: `  amanidx logs
  amanidx logs -f
  amanidx logs --level error -n 200
  amanidx logs --filter "watch|index_run"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd, root, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "info", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regular expression")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Log file to read (default ~/.amanidx/logs/amanidx.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts logsOptions) error {
	if opts.lines < 0 {
		return amerrors.ValidationError("--lines must not be negative", nil)
	}
	filter := logging.Filter{MinLevel: logging.ParseLevel(opts.level)}
	if opts.filter != "" {
		re, err := regexp.Compile(opts.filter)
		if err != nil {
			return amerrors.ValidationError("invalid filter pattern", err)
		}
		filter.Pattern = re
	}

	path := opts.logFile
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return amerrors.ValidationError("no log file at "+path, err).
			WithSuggestion("run 'amanidx serve' or any command with --debug to create it")
	}

	v := logging.NewViewer(filter, root.noColor)
	w := cmd.OutOrStdout()
	errW := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errW, "Log file: %s\n---\n", path)

	entries, err := v.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	v.Print(w, entries)
	if !opts.follow {
		return nil
	}

	followed := make(chan logging.Entry, 100)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, followed) }()
	for {
		select {
		case e := <-followed:
			_, _ = fmt.Fprintln(w, v.Format(e))
		case err := <-done:
			return err
		case <-ctx.Done():
			slog.Debug("log follow stopped")
			return <-done
		}
	}
}
