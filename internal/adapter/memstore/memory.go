// Package memstore keeps vector indexes in process memory. Indexes live as
// long as the MemoryStore that built them.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"finrag/internal/domain"
	"finrag/internal/port"
)

type MemoryStore struct {
	mu       sync.RWMutex
	indexes  map[string]*Index
	embedder port.Embedder
}

func NewMemoryStore(embedder port.Embedder) *MemoryStore {
	return &MemoryStore{
		indexes:  make(map[string]*Index),
		embedder: embedder,
	}
}

func (s *MemoryStore) Build(ctx context.Context, name string, chunks []domain.Chunk) (port.VectorIndex, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	idx := &Index{
		name:     name,
		chunks:   append([]domain.Chunk(nil), chunks...),
		vectors:  vecs,
		embedder: s.embedder,
	}

	s.mu.Lock()
	s.indexes[name] = idx
	s.mu.Unlock()
	return idx, nil
}

func (s *MemoryStore) Load(_ context.Context, name string) (port.VectorIndex, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, false, nil
	}
	return idx, true, nil
}

type Index struct {
	name     string
	chunks   []domain.Chunk
	vectors  [][]float32
	embedder port.Embedder
}

func (idx *Index) Name() string {
	return idx.name
}

func (idx *Index) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedChunk, error) {
	if topK <= 0 || len(idx.chunks) == 0 {
		return []domain.RetrievedChunk{}, nil
	}

	q, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	order := make([]int, len(idx.chunks))
	scores := make([]float64, len(idx.chunks))
	for i := range idx.chunks {
		order[i] = i
		scores[i] = cosine(q, idx.vectors[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]domain.RetrievedChunk, topK)
	for i := 0; i < topK; i++ {
		c := idx.chunks[order[i]]
		meta := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		out[i] = domain.RetrievedChunk{Text: c.Text, Score: scores[order[i]], Metadata: meta}
	}
	return out, nil
}

func (idx *Index) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
