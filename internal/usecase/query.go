package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finrag/internal/domain"
	"finrag/internal/metrics"
	"finrag/internal/port"
)

// QueryProcessor answers queries against one bound index, reading through the
// query cache when one is configured.
type QueryProcessor struct {
	index  port.VectorIndex
	cache  port.QueryCache
	answer port.AnswerLLM
	logger *slog.Logger
}

// NewQueryProcessor binds index. cache and answer may be nil; a nil cache
// disables every cache step.
func NewQueryProcessor(index port.VectorIndex, cache port.QueryCache, answer port.AnswerLLM, logger *slog.Logger) *QueryProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryProcessor{
		index:  index,
		cache:  cache,
		answer: answer,
		logger: logger,
	}
}

// Index returns the bound index.
func (p *QueryProcessor) Index() port.VectorIndex {
	return p.index
}

// ProcessQuery returns the top chunks for query. A cache hit is returned as
// stored, whatever topK was when it was written.
func (p *QueryProcessor) ProcessQuery(ctx context.Context, query string, topK int) ([]domain.RetrievedChunk, error) {
	start := time.Now()

	if p.cache != nil {
		if cached, ok := p.cache.GetQueryResults(ctx, query); ok && len(cached) > 0 {
			metrics.RetrievalDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
			p.logger.Debug("query cache hit", "query", query, "chunks", len(cached))
			return cached, nil
		}
	}

	results, err := p.index.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	label := "disabled"
	if p.cache != nil {
		label = "miss"
	}
	metrics.RetrievalDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if len(results) == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if p.cache != nil {
		p.cache.PutQueryResults(ctx, query, results)
	}
	return results, nil
}

// GenerateAnswer retrieves topK chunks straight from the index, bypassing the
// cache, and asks the answer model to synthesize a reply from them.
func (p *QueryProcessor) GenerateAnswer(ctx context.Context, query string, topK int) (string, error) {
	if p.answer == nil {
		return "", fmt.Errorf("%w: no answer model configured", domain.ErrAnswerGenerationFailed)
	}

	chunks, err := p.index.Retrieve(ctx, query, topK)
	if err != nil {
		return "", fmt.Errorf("%w: retrieval: %w", domain.ErrAnswerGenerationFailed, err)
	}

	answer, err := p.answer.Generate(ctx, query, chunks)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAnswerGenerationFailed, err)
	}
	return answer, nil
}
