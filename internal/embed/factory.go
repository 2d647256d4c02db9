package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

// Provider names an embedding backend.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderStatic Provider = "static"
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// ParseProvider accepts the names above case-insensitively; "" is none.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ProviderNone:
		return ProviderNone, nil
	case ProviderStatic, ProviderOllama, ProviderOpenAI:
		return p, nil
	default:
		return "", amerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", s), nil).
			WithSuggestion("use one of: none, static, ollama, openai")
	}
}

// Options selects and configures a provider.
type Options struct {
	Provider   Provider
	Model      string
	Host       string
	APIKeyEnv  string
	Dimensions int
	// CacheSize wraps the provider in a CachedEmbedder when > 0.
	CacheSize int
	Metrics   *telemetry.Metrics
}

// New builds the configured embedder. ProviderNone returns (nil, nil):
// the engine then runs keyword-only.
func New(ctx context.Context, opts Options) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch opts.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderStatic:
		e = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{Host: opts.Host, Model: opts.Model, Dimensions: opts.Dimensions})
	case ProviderOpenAI:
		envName := opts.APIKeyEnv
		if envName == "" {
			envName = "OPENAI_API_KEY"
		}
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     os.Getenv(envName),
			BaseURL:    opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
		})
	default:
		_, err = ParseProvider(string(opts.Provider))
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize, opts.Metrics)
	}
	return e, nil
}
