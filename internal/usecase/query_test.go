package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/domain"
)

func TestProcessQueryCacheFirst(t *testing.T) {
	idx := &fakeIndex{results: []domain.RetrievedChunk{chunk("fresh", "a.pdf")}}
	qc := newFakeQueryCache()
	cached := []domain.RetrievedChunk{chunk("cached one", "x.pdf"), chunk("cached two", "y.pdf")}
	qc.entries["revenue 2023"] = cached

	p := NewQueryProcessor(idx, qc, nil, nil)
	got, err := p.ProcessQuery(context.Background(), "revenue 2023", 10)
	require.NoError(t, err)

	assert.Equal(t, cached, got)
	assert.Equal(t, int32(0), idx.calls.Load())
	assert.Equal(t, 0, qc.puts)
}

func TestProcessQueryCacheHitIgnoresTopK(t *testing.T) {
	idx := &fakeIndex{}
	qc := newFakeQueryCache()
	qc.entries["q"] = []domain.RetrievedChunk{chunk("a", "a"), chunk("b", "b"), chunk("c", "c")}

	p := NewQueryProcessor(idx, qc, nil, nil)
	got, err := p.ProcessQuery(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestProcessQueryMissThenPopulate(t *testing.T) {
	results := []domain.RetrievedChunk{chunk("Revenue grew 10%.", "a.pdf")}
	idx := &fakeIndex{results: results}
	qc := newFakeQueryCache()

	p := NewQueryProcessor(idx, qc, nil, nil)
	got, err := p.ProcessQuery(context.Background(), "revenue", 10)
	require.NoError(t, err)

	assert.Equal(t, results, got)
	assert.Equal(t, int32(1), idx.calls.Load())
	assert.Equal(t, []int{10}, idx.topKs)
	assert.Equal(t, 1, qc.puts)
	assert.Equal(t, results, qc.entries["revenue"])

	// second call is served from the cache
	_, err = p.ProcessQuery(context.Background(), "revenue", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), idx.calls.Load())
}

func TestProcessQueryEmptyResultsNotCached(t *testing.T) {
	idx := &fakeIndex{}
	qc := newFakeQueryCache()

	p := NewQueryProcessor(idx, qc, nil, nil)
	got, err := p.ProcessQuery(context.Background(), "nothing", 10)
	require.NoError(t, err)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, qc.puts)
}

func TestProcessQueryWithoutCache(t *testing.T) {
	idx := &fakeIndex{results: []domain.RetrievedChunk{chunk("a", "a.pdf")}}

	p := NewQueryProcessor(idx, nil, nil, nil)
	for i := 0; i < 2; i++ {
		_, err := p.ProcessQuery(context.Background(), "q", 5)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), idx.calls.Load())
}

func TestProcessQueryRetrievalError(t *testing.T) {
	boom := errors.New("index offline")
	idx := &fakeIndex{err: boom}
	qc := newFakeQueryCache()

	p := NewQueryProcessor(idx, qc, nil, nil)
	_, err := p.ProcessQuery(context.Background(), "q", 5)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, qc.puts)
}

func TestGenerateAnswer(t *testing.T) {
	results := []domain.RetrievedChunk{chunk("a", "a.pdf"), chunk("b", "b.pdf"), chunk("c", "c.pdf")}

	t.Run("bypasses cache", func(t *testing.T) {
		idx := &fakeIndex{results: results}
		qc := newFakeQueryCache()
		ans := &fakeAnswer{reply: "Revenue grew."}

		p := NewQueryProcessor(idx, qc, ans, nil)
		got, err := p.GenerateAnswer(context.Background(), "revenue", 2)
		require.NoError(t, err)

		assert.Equal(t, "Revenue grew.", got)
		assert.Equal(t, results[:2], ans.chunks)
		assert.Equal(t, 0, qc.gets)
		assert.Equal(t, 0, qc.puts)
	})

	t.Run("llm failure", func(t *testing.T) {
		idx := &fakeIndex{results: results}
		ans := &fakeAnswer{err: errors.New("quota exceeded")}

		p := NewQueryProcessor(idx, nil, ans, nil)
		_, err := p.GenerateAnswer(context.Background(), "revenue", 5)
		require.ErrorIs(t, err, domain.ErrAnswerGenerationFailed)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("no model", func(t *testing.T) {
		p := NewQueryProcessor(&fakeIndex{}, nil, nil, nil)
		_, err := p.GenerateAnswer(context.Background(), "revenue", 5)
		require.ErrorIs(t, err, domain.ErrAnswerGenerationFailed)
	})
}
