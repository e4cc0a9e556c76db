package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"

	"finrag/internal/metrics"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedInBatches splits texts into batches of batchSize and runs up to
// concurrency of them at once. Vectors are placed by input offset so the
// output order matches texts regardless of completion order.
func embedInBatches(ctx context.Context, model string, texts []string, batchSize, concurrency int, fn batchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, batch := start, texts[start:end]

		g.Go(func() error {
			vecs, err := fn(gctx, batch)
			if err != nil {
				metrics.EmbeddingBatches.WithLabelValues(model, "error").Inc()
				return err
			}
			metrics.EmbeddingBatches.WithLabelValues(model, "ok").Inc()
			copy(out[start:start+len(batch)], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
