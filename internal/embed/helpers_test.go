package embed

import (
	"context"
	"errors"
	"sync"
)

// fakeEmbedder returns fixed-width vectors and can be told to fail.
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	calls    int
	batches  [][]string
	failFrom int // fail every call with index >= failFrom when failFrom > 0
	failAll  bool
	width    int // overrides returned width when > 0
}

var errFake = errors.New("provider down")

func newFake(dims int) *fakeEmbedder { return &fakeEmbedder{dims: dims} }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failAll || (f.failFrom > 0 && f.calls >= f.failFrom) {
		return nil, errFake
	}
	width := f.dims
	if f.width > 0 {
		width = f.width
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, width)
		v[i%width] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                { return f.dims }
func (f *fakeEmbedder) ModelName() string              { return "fake" }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                   { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
