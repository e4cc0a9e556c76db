package embedding

import (
	"context"

	"finrag/internal/port"
)

// EmbeddingCache is the slice of the cache the decorator needs.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool)
	PutEmbedding(ctx context.Context, text string, vec []float32)
}

// CachedEmbedder serves vectors from the embedding namespace and only sends
// misses to the wrapped provider.
type CachedEmbedder struct {
	inner port.Embedder
	cache EmbeddingCache
}

func NewCachedEmbedder(inner port.Embedder, cache EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make(map[string][]int)
	var missing []string

	for i, text := range texts {
		if vec, ok := e.cache.GetEmbedding(ctx, text); ok {
			out[i] = vec
			continue
		}
		if _, seen := missIdx[text]; !seen {
			missing = append(missing, text)
		}
		missIdx[text] = append(missIdx[text], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, text := range missing {
		for _, i := range missIdx[text] {
			out[i] = vecs[j]
		}
		e.cache.PutEmbedding(ctx, text, vecs[j])
	}
	return out, nil
}

// EmbedQuery is not cached: query vectors use their own task type and the
// query namespace already memoizes whole retrievals.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.inner.EmbedQuery(ctx, text)
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}
