package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

var errEmbedderClosed = errors.New("embedder is closed")

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder hashes tokens and character trigrams into a fixed-width
// vector. It needs no network or model and is deterministic, at the cost of
// only lexical similarity.
type StaticEmbedder struct {
	dims int
	tok  *tfidf.Tokenizer

	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder uses StaticDimensions when dims <= 0.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{
		dims: dims,
		tok:  tfidf.NewTokenizer(tfidf.TokenizerOptions{MinTokenLength: 2}),
	}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errEmbedderClosed
	}
	return e.vector(text), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	if strings.TrimSpace(text) == "" {
		return v
	}
	for _, token := range e.tok.Tokenize(text) {
		v[bucket(token, e.dims)] += tokenWeight
	}
	compact := compactLower(text)
	for i := 0; i+ngramSize <= len(compact); i++ {
		v[bucket(compact[i:i+ngramSize], e.dims)] += ngramWeight
	}
	return normalizeVector(v)
}

func compactLower(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func bucket(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func (e *StaticEmbedder) Dimensions() int   { return e.dims }
func (e *StaticEmbedder) ModelName() string { return "static" }

func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
