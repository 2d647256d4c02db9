package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanidx/internal/async"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/httpapi"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/mcp"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

type serveOptions struct {
	httpAddr string
	stdio    bool
	noWatch  bool
	noIndex  bool
	embedder string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to MCP clients",
		Long: `Start the MCP server on stdio. The index is brought up to date in the
background and kept fresh by the watcher while the server runs; searches
answer from the last committed snapshot meanwhile.

With --http the same engine is also served as a JSON API with Prometheus
metrics at /metrics. Use --stdio=false to serve HTTP only.

Nothing but MCP messages is written to stdout; logs go to
~/.amanidx/logs/amanidx.log.`,
		Example: `  # MCP over stdio
  amanidx serve

  # MCP plus the HTTP API
  amanidx serve --http 127.0.0.1:8765

  # HTTP only
  amanidx serve --stdio=false --http :8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "Also serve the JSON API on this address (default server.http_addr)")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", true, "Serve MCP on stdin/stdout")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch for file changes")
	cmd.Flags().BoolVar(&opts.noIndex, "no-index", false, "Skip the startup index run")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedding backend: none, static, ollama or openai (overrides config)")

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions) error {
	p, err := root.loadProject()
	if err != nil {
		return err
	}

	// stdout belongs to the MCP transport.
	level := p.cfg.Server.LogLevel
	if root.debug {
		level = "debug"
	}
	if err := root.installLogging(logging.StdioSafeConfig(level)); err != nil {
		return err
	}

	addr := opts.httpAddr
	if addr == "" {
		addr = p.cfg.Server.HTTPAddr
	}
	if !opts.stdio && addr == "" {
		return amerrors.ValidationError("nothing to serve", nil).
			WithSuggestion("pass --http <addr> when --stdio=false")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)
	queryMetrics := telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig())
	logger := slog.Default()

	s, err := root.openEngine(ctx, p, engineSetup{
		provider:     opts.embedder,
		metrics:      metrics,
		queryMetrics: queryMetrics,
		logger:       logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	engine := s.engine

	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: engine.DataDir(), Progress: engine.Progress()})
	bg.IndexFunc = func(ctx context.Context) error {
		_, err := engine.Index(ctx, index.IndexOptions{})
		return err
	}
	if !opts.noIndex {
		if async.HasIncompleteRun(engine.DataDir()) {
			logger.Warn("previous background index run did not finish, resuming",
				slog.String("data_dir", engine.DataDir()))
		}
		bg.Start(ctx)
	}
	defer bg.Stop()

	if !opts.noWatch {
		if err := engine.StartWatching(ctx); err != nil {
			// Serving a stale index beats not serving.
			logger.LogAttrs(ctx, slog.LevelWarn, "file watching disabled", amerrors.LogAttrs(err)...)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.stdio {
		srv, err := mcp.NewServer(engine, mcp.Options{
			Embedder:     s.embedder,
			QueryMetrics: queryMetrics,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			// The client closing stdin ends the whole process.
			defer cancel()
			return srv.Serve(gctx, &sdkmcp.StdioTransport{})
		})
	}
	if addr != "" {
		api := httpapi.NewServer(engine, httpapi.Options{Metrics: metrics, Gatherer: reg, Logger: logger})
		g.Go(func() error { return api.ListenAndServe(gctx, addr) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
