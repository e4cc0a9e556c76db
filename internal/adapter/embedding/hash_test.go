package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedderSharedTermsScoreHigher(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())

	docs, err := e.Embed(ctx, []string{"Revenue grew 10%.", "Costs fell 5%."})
	require.NoError(t, err)
	q, err := e.EmbedQuery(ctx, "What was revenue growth?")
	require.NoError(t, err)

	assert.Greater(t, dot(q, docs[0]), dot(q, docs[1]))
	assert.InDelta(t, 1.0, math.Sqrt(dot(docs[0], docs[0])), 1e-6)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).EmbedQuery(context.Background(), "the a")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}
