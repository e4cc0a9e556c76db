package embedding

import (
	"context"
	"sync/atomic"
)

// MockEmbedder derives vectors from rune values. It needs no network and is
// deterministic, which makes it the embedder of choice in tests.
type MockEmbedder struct {
	dimension int
	calls     atomic.Int64
	texts     atomic.Int64
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = e.vector(texts[i])
	}
	return embeddings, nil
}

func (e *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)
	j := 0
	for _, r := range text {
		if j >= e.dimension {
			break
		}
		v[j] = float32(r) / 1000.0
		j++
	}
	return v
}

// Calls returns how many Embed calls were made.
func (e *MockEmbedder) Calls() int { return int(e.calls.Load()) }

// Texts returns how many texts were embedded in total.
func (e *MockEmbedder) Texts() int { return int(e.texts.Load()) }

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
