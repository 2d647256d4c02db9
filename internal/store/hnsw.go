package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

var errVectorStoreClosed = errors.New("vector store is closed")

// HNSWStore holds document embeddings in an in-memory HNSW graph.
//
// Replacing or deleting an ID only drops its key mapping; the old node stays
// in the graph until the next full Reset. Removing nodes from coder/hnsw
// can leave the graph without an entry point.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	keys    map[string]uint64
	docs    map[uint64]vectorEntry
	nextKey uint64

	closed bool
}

type vectorEntry struct {
	ID       string
	Metadata VectorMetadata
}

// vectorSidecar is gob-encoded next to the exported graph.
type vectorSidecar struct {
	Config  VectorStoreConfig
	NextKey uint64
	Entries map[uint64]vectorEntry
}

// NewHNSWStore returns an empty store. Dimensions must be positive.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	s := &HNSWStore{config: cfg}
	s.resetLocked()
	return s, nil
}

func (s *HNSWStore) resetLocked() {
	g := hnsw.NewGraph[uint64]()
	if s.config.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = s.config.M
	g.EfSearch = s.config.EfSearch
	g.Ml = 0.25

	s.graph = g
	s.keys = make(map[string]uint64)
	s.docs = make(map[uint64]vectorEntry)
	s.nextKey = 0
}

func (s *HNSWStore) Config() VectorStoreConfig { return s.config }

// Reset drops every vector and orphaned node.
func (s *HNSWStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Upsert adds documents, replacing any with the same ID.
func (s *HNSWStore) Upsert(ctx context.Context, docs []VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if len(d.Embedding) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(d.Embedding)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errVectorStoreClosed
	}

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if old, ok := s.keys[d.ID]; ok {
			delete(s.docs, old)
		}
		key := s.nextKey
		s.nextKey++

		vec := append([]float32(nil), d.Embedding...)
		if s.config.Metric == "cos" {
			normalize(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.keys[d.ID] = key
		s.docs[key] = vectorEntry{ID: d.ID, Metadata: d.Metadata}
	}
	return nil
}

// Search returns up to k neighbours ordered by descending score.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errVectorStoreClosed
	}
	if len(s.keys) == 0 || k <= 0 {
		return []VectorResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := append([]float32(nil), query...)
	if s.config.Metric == "cos" {
		normalize(q)
	}

	// Orphans can crowd out live nodes, so over-fetch by their count.
	fetch := k + (s.graph.Len() - len(s.keys))
	nodes := s.graph.Search(q, fetch)

	results := make([]VectorResult, 0, k)
	for _, n := range nodes {
		entry, ok := s.docs[n.Key]
		if !ok {
			continue
		}
		dist := s.graph.Distance(q, n.Value)
		results = append(results, VectorResult{
			ID:       entry.ID,
			Distance: dist,
			Score:    similarity(dist, s.config.Metric),
			Metadata: entry.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete drops the given IDs. Unknown IDs are ignored.
func (s *HNSWStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errVectorStoreClosed
	}
	for _, id := range ids {
		if key, ok := s.keys[id]; ok {
			delete(s.docs, key)
			delete(s.keys, id)
		}
	}
	return nil
}

func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[id]
	return ok && !s.closed
}

func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.keys)
}

// Orphans is the number of graph nodes no longer mapped to an ID.
func (s *HNSWStore) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.keys)
}

// Save writes the graph to path and the ID table to path+".meta". Both are
// written to temporary files and renamed into place.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errVectorStoreClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	side := vectorSidecar{Config: s.config, NextKey: s.nextKey, Entries: s.docs}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(side) }); err != nil {
		return fmt.Errorf("write vector metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadHNSWStore reads a store written by Save.
func LoadHNSWStore(path string) (*HNSWStore, error) {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open vector metadata: %w", err)
	}
	var side vectorSidecar
	err = gob.NewDecoder(mf).Decode(&side)
	_ = mf.Close()
	if err != nil {
		return nil, fmt.Errorf("decode vector metadata: %w", err)
	}

	s, err := NewHNSWStore(side.Config)
	if err != nil {
		return nil, err
	}

	gf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector graph: %w", err)
	}
	defer gf.Close()
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("import vector graph: %w", err)
	}

	s.nextKey = side.NextKey
	if side.Entries != nil {
		s.docs = side.Entries
	}
	for key, e := range s.docs {
		s.keys[e.ID] = key
	}
	return s, nil
}

// RemoveHNSWFiles deletes the graph and its sidecar.
func RemoveHNSWFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// similarity maps cosine distance [0,2] or L2 distance [0,inf) into [0,1].
func similarity(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1 / (1 + distance)
	}
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
