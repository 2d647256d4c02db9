package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	ollamaConnectTimeout = 5 * time.Second
	ollamaRequestTimeout = 60 * time.Second
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	Host  string
	Model string
	// Dimensions skips auto-detection when > 0.
	Dimensions int
	// Timeout bounds one request; retries get their own.
	Timeout time.Duration
	Retry   amerrors.RetryConfig
	// SkipHealthCheck avoids contacting the server in the constructor.
	SkipHealthCheck bool
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	cfg       OllamaConfig
	client    *http.Client
	transport *http.Transport
	dims      int

	mu     sync.RWMutex
	closed bool
}

// NewOllamaEmbedder checks the server has the model and probes its width
// unless told not to.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = ollamaRequestTimeout
	}
	if cfg.Retry == (amerrors.RetryConfig{}) {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}

	// No client-level timeout: each request carries its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &OllamaEmbedder{
		cfg:       cfg,
		client:    &http.Client{Transport: transport},
		transport: transport,
		dims:      cfg.Dimensions,
	}

	if cfg.SkipHealthCheck {
		return e, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, ollamaConnectTimeout)
	defer cancel()
	if err := e.checkModel(checkCtx); err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	if e.dims == 0 {
		vecs, err := e.post(ctx, []string{"dimension probe"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, amerrors.EmbeddingError(fmt.Errorf("detect dimensions: %w", err))
		}
		e.dims = len(vecs[0])
	}
	return e, nil
}

func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeProviderUnavailable, "ollama is not reachable at "+e.cfg.Host, err).
			WithSuggestion("start it with 'ollama serve' or set embeddings.provider to static")
	}
	defer resp.Body.Close()

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return amerrors.EmbeddingError(fmt.Errorf("decode model list: %w", err))
	}
	for _, m := range tags.Models {
		if m.Name == e.cfg.Model || strings.TrimSuffix(m.Name, ":latest") == e.cfg.Model {
			return nil
		}
	}
	return amerrors.New(amerrors.ErrCodeEmbeddingFailed, "ollama model "+e.cfg.Model+" is not installed", nil).
		WithSuggestion("run 'ollama pull " + e.cfg.Model + "'")
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in one request. Blank texts get zero vectors
// without a call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errEmbedderClosed
	}

	out := make([][]float32, len(texts))
	var idx []int
	var inputs []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
		inputs = append(inputs, truncate(t))
	}
	if len(inputs) == 0 {
		return out, nil
	}

	vecs, err := amerrors.Retry(ctx, e.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		return e.post(reqCtx, inputs)
	})
	if err != nil {
		return nil, err
	}
	for j, i := range idx {
		out[i] = vecs[j]
	}
	return out, nil
}

func (e *OllamaEmbedder) post(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: inputs})
	if err != nil {
		return nil, amerrors.InternalError("marshal embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, amerrors.InternalError("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, amerrors.New(amerrors.ErrCodeProviderTimeout, "ollama request timed out", err)
		}
		return nil, amerrors.New(amerrors.ErrCodeProviderUnavailable, "ollama request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := amerrors.ErrCodeEmbeddingFailed
		if resp.StatusCode >= 500 {
			code = amerrors.ErrCodeProviderUnavailable
		}
		return nil, amerrors.New(code, fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var decoded ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, amerrors.EmbeddingError(fmt.Errorf("decode embed response: %w", err))
	}
	if len(decoded.Embeddings) != len(inputs) {
		return nil, amerrors.EmbeddingError(fmt.Errorf("got %d embeddings for %d inputs", len(decoded.Embeddings), len(inputs)))
	}

	out := make([][]float32, len(decoded.Embeddings))
	for i, emb := range decoded.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = normalizeVector(v)
	}
	slog.Debug("ollama batch embedded", slog.Int("count", len(out)), slog.String("model", e.cfg.Model))
	return out, nil
}

func (e *OllamaEmbedder) Dimensions() int   { return e.dims }
func (e *OllamaEmbedder) ModelName() string { return e.cfg.Model }

// Available is a quick model check against the server.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, ollamaConnectTimeout)
	defer cancel()
	return e.checkModel(ctx) == nil
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}
