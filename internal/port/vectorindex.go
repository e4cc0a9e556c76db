package port

import (
	"context"

	"finrag/internal/domain"
)

// VectorIndex retrieves the chunks most similar to a query.
type VectorIndex interface {
	// Retrieve returns up to topK chunks ordered by similarity, highest first.
	// No match is an empty result, not an error.
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedChunk, error)

	// Name returns the name the index was built or loaded under.
	Name() string

	Close() error
}

// PersistableIndex is an index that can write a standalone copy of itself.
type PersistableIndex interface {
	VectorIndex
	Persist(ctx context.Context, path string) error
}

// IndexBuilder builds vector indexes from chunks and reopens persisted ones.
type IndexBuilder interface {
	// Build embeds the chunks and stores them under name, replacing any
	// previous index with that name.
	Build(ctx context.Context, name string, chunks []domain.Chunk) (VectorIndex, error)

	// Load opens a persisted index. found is false when no index exists under
	// name; a corrupt index is an error.
	Load(ctx context.Context, name string) (idx VectorIndex, found bool, err error)
}
