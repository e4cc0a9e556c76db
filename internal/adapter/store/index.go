package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finrag/internal/domain"
	"finrag/internal/port"
)

const indexFileExt = ".db"

// BoltIndex is a VectorIndex backed by a single bbolt file.
type BoltIndex struct {
	name     string
	store    *BoltStore
	vectors  *BoltVectorStore
	embedder port.Embedder
}

func (idx *BoltIndex) Name() string {
	return idx.name
}

func (idx *BoltIndex) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedChunk, error) {
	if topK <= 0 {
		return []domain.RetrievedChunk{}, nil
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := idx.vectors.Search(queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	chunks, err := idx.store.GetChunks(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunk, ok := byID[r.ID]
		if !ok {
			continue
		}
		out = append(out, toRetrieved(chunk, r.Score))
	}
	return out, nil
}

// Persist writes a standalone copy of the index to path.
func (idx *BoltIndex) Persist(_ context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := idx.store.CopyTo(path); err != nil {
		return fmt.Errorf("failed to persist index %s: %w", idx.name, err)
	}
	return nil
}

func (idx *BoltIndex) Close() error {
	return idx.store.Close()
}

func toRetrieved(c domain.Chunk, score float64) domain.RetrievedChunk {
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return domain.RetrievedChunk{Text: c.Text, Score: score, Metadata: meta}
}

// BoltBuilder builds and loads indexes stored as <dir>/<name>.db.
type BoltBuilder struct {
	dir      string
	embedder port.Embedder
	now      func() time.Time
}

func NewBoltBuilder(dir string, embedder port.Embedder) *BoltBuilder {
	return &BoltBuilder{dir: dir, embedder: embedder, now: time.Now}
}

func (b *BoltBuilder) IndexPath(name string) string {
	return filepath.Join(b.dir, name+indexFileExt)
}

// Build embeds chunks into a fresh file and atomically replaces any index of
// the same name.
func (b *BoltBuilder) Build(ctx context.Context, name string, chunks []domain.Chunk) (port.VectorIndex, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	finalPath := b.IndexPath(name)
	tmpPath := finalPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := b.write(tmpPath, name, chunks, vecs); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to replace index %s: %w", name, err)
	}

	idx, found, err := b.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s vanished after build", domain.ErrIndexNotFound, name)
	}
	return idx, nil
}

func (b *BoltBuilder) write(path, name string, chunks []domain.Chunk, vecs [][]float32) error {
	s, err := OpenBoltStore(path, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.PutChunks(chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	vs, err := NewBoltVectorStore(s.DB(), b.embedder.Dimension())
	if err != nil {
		return err
	}
	items := make([]VectorItem, len(chunks))
	for i, c := range chunks {
		items[i] = VectorItem{ID: c.ID, Vector: vecs[i]}
	}
	if err := vs.Upsert(items); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:        CurrentSchemaVersion,
		IndexName:      name,
		EmbeddingModel: b.embedder.ModelName(),
		Dimension:      b.embedder.Dimension(),
		ChunkCount:     len(chunks),
		BuiltAt:        b.now().UTC(),
	})
}

// Load opens <dir>/<name>.db. A missing file is reported as not found; an
// unreadable or incompatible one is an error.
func (b *BoltBuilder) Load(_ context.Context, name string) (port.VectorIndex, bool, error) {
	path := b.IndexPath(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to stat index %s: %w", name, err)
	}

	s, err := OpenBoltStore(path, true)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, name, err)
	}

	info, err := s.GetSchemaInfo()
	if err != nil {
		s.Close()
		return nil, false, err
	}
	if err := info.CheckCompatible(b.embedder.ModelName(), b.embedder.Dimension()); err != nil {
		s.Close()
		return nil, false, err
	}

	vs, err := NewBoltVectorStore(s.DB(), info.Dimension)
	if err != nil {
		s.Close()
		return nil, false, err
	}

	return &BoltIndex{name: name, store: s, vectors: vs, embedder: b.embedder}, true, nil
}
