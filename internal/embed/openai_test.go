package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

type embeddingsResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func openAIServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingsResponse{Object: "list", Model: "test-model"}
		// Reverse order to check results are placed by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, 4)
			v[i%4] = 2
			resp.Data = append(resp.Data, struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Object: "embedding", Embedding: v, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	// Given: a compatible server
	srv, _ := openAIServer(t, http.StatusOK)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model", Dimensions: 4, Retry: fastRetry()})
	require.NoError(t, err)

	// When: embedding two texts and a blank
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", " ", "second"})

	// Then: vectors land at their input positions, normalised
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[1])
	assert.Equal(t, []float32{0, 1, 0, 0}, vecs[2])
	assert.Equal(t, "test-model", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
}

func TestOpenAIEmbedder_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := openAIServer(t, http.StatusBadRequest)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Dimensions: 4, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedder_ServerErrorIsRetried(t *testing.T) {
	srv, calls := openAIServer(t, http.StatusBadGateway)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Dimensions: 4, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeProviderUnavailable, amerrors.GetCode(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}
