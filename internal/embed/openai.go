package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIConfig configures an OpenAIEmbedder. BaseURL may point at any
// OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Retry      amerrors.RetryConfig
}

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
	retry  amerrors.RetryConfig

	mu     sync.RWMutex
	closed bool
}

// NewOpenAIEmbedder requires an API key and a positive dimension count,
// since the width cannot be discovered without spending a request.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, amerrors.ConfigError("openai embeddings need an API key", nil).
			WithSuggestion("export the variable named by embeddings.api_key_env")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Retry == (amerrors.RetryConfig{}) {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
		dims:   cfg.Dimensions,
		retry:  cfg.Retry,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

	resp, err := amerrors.Retry(ctx, e.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		r, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:          inputs,
			Model:          e.model,
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
			Dimensions:     e.dims,
		})
		if err != nil {
			return r, classifyOpenAIError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, amerrors.EmbeddingError(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(inputs)))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(idx) {
			return nil, amerrors.EmbeddingError(fmt.Errorf("embedding index %d out of range", d.Index))
		}
		if len(d.Embedding) != e.dims {
			return nil, amerrors.EmbeddingError(fmt.Errorf("embedding width %d, want %d", len(d.Embedding), e.dims))
		}
		out[idx[d.Index]] = normalizeVector(d.Embedding)
	}
	return out, nil
}

// classifyOpenAIError marks rate limits and server errors retryable.
func classifyOpenAIError(err error) error {
	status := 0
	detail := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		detail = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		detail = extractDetail(reqErr.Body, detail)
	}

	if status == 429 || status >= 500 || status == 0 {
		return amerrors.New(amerrors.ErrCodeProviderUnavailable, fmt.Sprintf("embedding API error %d: %s", status, detail), err)
	}
	return amerrors.New(amerrors.ErrCodeEmbeddingFailed, fmt.Sprintf("embedding API error %d: %s", status, detail), err)
}

// extractDetail reads the "detail" field some compatible servers return.
func extractDetail(body []byte, fallback string) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return fallback
}

func (e *OpenAIEmbedder) Dimensions() int   { return e.dims }
func (e *OpenAIEmbedder) ModelName() string { return string(e.model) }

// Available lists models, which costs no tokens.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
