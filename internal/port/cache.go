package port

import (
	"context"

	"finrag/internal/domain"
)

// QueryCache memoizes retrieval results by raw query text. Implementations
// absorb backend failures: an unreachable store reads as a miss and drops
// writes.
type QueryCache interface {
	GetQueryResults(ctx context.Context, query string) ([]domain.RetrievedChunk, bool)
	PutQueryResults(ctx context.Context, query string, results []domain.RetrievedChunk)
}
