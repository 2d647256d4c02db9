package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

// embedderInitTimeout bounds provider probing at startup.
const embedderInitTimeout = 15 * time.Second

// project is a resolved project directory and its configuration.
type project struct {
	root string
	cfg  *config.Config
}

// loadProject resolves the project root from --dir and loads its config.
func (o *rootOptions) loadProject() (*project, error) {
	abs, err := filepath.Abs(o.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, amerrors.New(amerrors.ErrCodeRootNotFound, "not a directory: "+abs, err)
	}
	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg}, nil
}

// engineSetup carries optional collaborators into openEngine.
type engineSetup struct {
	// provider overrides embeddings.provider when set.
	provider     string
	metrics      *telemetry.Metrics
	queryMetrics *telemetry.QueryMetrics
	logger       *slog.Logger
}

// session is an open engine plus the embedder it owns.
type session struct {
	*project
	engine   *index.Engine
	embedder embed.Embedder
}

func (s *session) Close() error {
	err := s.engine.Close()
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	return err
}

// openEngine builds the engine for the selected source from config.
func (o *rootOptions) openEngine(ctx context.Context, p *project, setup engineSetup) (*session, error) {
	embedder, err := newEmbedder(ctx, p.cfg, setup)
	if err != nil {
		return nil, err
	}

	eo := engineOptions(p, o.knowledge)
	eo.Embedder = embedder
	eo.Metrics = setup.metrics
	eo.QueryMetrics = setup.queryMetrics
	eo.Logger = setup.logger

	engine, err := index.New(ctx, eo)
	if err != nil {
		if embedder != nil {
			_ = embedder.Close()
		}
		return nil, err
	}
	return &session{project: p, engine: engine, embedder: embedder}, nil
}

// engineOptions maps configuration onto index.Options. The knowledge source
// indexes knowledge.dir and keeps its data under .amanidx/knowledge.
func engineOptions(p *project, knowledge bool) index.Options {
	cfg := p.cfg
	opts := index.Options{
		RootDir:          p.root,
		Source:           index.SourceCode,
		Exclude:          cfg.Paths.Exclude,
		RespectGitignore: cfg.RespectsGitignore(),
		Extensions:       cfg.Paths.Include,
		MaxFileSize:      cfg.Paths.MaxFileSize,
		Workers:          cfg.Index.Workers,
		ChangeThreshold:  cfg.Index.ChangeThreshold,
		Tokenizer: tfidf.TokenizerOptions{
			MinTokenLength: cfg.Index.MinTokenLength,
			StopWords:      cfg.Index.StopWords,
		},
		SearchLimit:    cfg.Index.Limit,
		MinScore:       cfg.Index.MinScore,
		StoreDriver:    cfg.Store.Driver,
		EmbedBatchSize: cfg.Embeddings.BatchSize,
		DebounceWindow: cfg.CodeDebounce(),
		PollInterval:   cfg.PollInterval(),
	}
	if knowledge {
		opts.Source = index.SourceKnowledge
		opts.RootDir = cfg.KnowledgeDir(p.root)
		opts.DataDir = filepath.Join(p.root, index.DefaultDataDir, "knowledge")
		opts.Extensions = nil
		opts.DebounceWindow = cfg.KnowledgeDebounce()
	}
	return opts
}

// newEmbedder returns nil when no provider is configured.
func newEmbedder(ctx context.Context, cfg *config.Config, setup engineSetup) (embed.Embedder, error) {
	name := cfg.Embeddings.Provider
	if setup.provider != "" {
		name = setup.provider
	}
	provider, err := embed.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	if provider == embed.ProviderNone {
		return nil, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, embedderInitTimeout)
	defer cancel()
	e, err := embed.New(initCtx, embed.Options{
		Provider:   provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		APIKeyEnv:  cfg.Embeddings.APIKeyEnv,
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
		Metrics:    setup.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder initialization failed: %w", err)
	}
	slog.Debug("embedder ready",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))
	return e, nil
}
