// Package pgstore keeps vector indexes in Postgres with the pgvector
// extension. Each index is a table; a registry table records the embedding
// model it was built with.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"finrag/internal/domain"
	"finrag/internal/port"
)

const registryTable = "finrag_indexes"

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,40}$`)

// chunkNamespace derives stable row ids from chunk ids.
var chunkNamespace = uuid.MustParse("6f1c0f7e-3c1e-4c55-9a43-0d7f2b6a9e21")

type Builder struct {
	db       *sql.DB
	embedder port.Embedder
}

// Open connects to dsn and makes sure the pgvector extension and the
// registry table exist.
func Open(ctx context.Context, dsn string, embedder port.Embedder) (*Builder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b := &Builder{db: db, embedder: embedder}
	if err := b.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Builder) init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + registryTable + ` (
			name            TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			dimension       INTEGER NOT NULL,
			chunk_count     INTEGER NOT NULL,
			built_at        TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func tableName(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid index name %q: use letters, digits and underscores", name)
	}
	return "finrag_idx_" + name, nil
}

func (b *Builder) Build(ctx context.Context, name string, chunks []domain.Chunk) (port.VectorIndex, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
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

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ddl := []string{
		`DROP TABLE IF EXISTS ` + table,
		fmt.Sprintf(`CREATE TABLE %s (
			id          UUID PRIMARY KEY,
			chunk_id    TEXT NOT NULL,
			doc_id      TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			metadata    JSONB NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, table, b.embedder.Dimension()),
	}
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create index table: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO `+table+
		` (id, chunk_id, doc_id, chunk_index, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, err
		}
		id := uuid.NewSHA1(chunkNamespace, []byte(c.ID))
		if _, err := insert.ExecContext(ctx, id, c.ID, c.DocID, c.Index, c.Text, meta, pgvector.NewVector(vecs[i])); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO `+registryTable+` (name, embedding_model, dimension, chunk_count, built_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			embedding_model = EXCLUDED.embedding_model,
			dimension = EXCLUDED.dimension,
			chunk_count = EXCLUDED.chunk_count,
			built_at = EXCLUDED.built_at`,
		name, b.embedder.ModelName(), b.embedder.Dimension(), len(chunks), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to register index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit index %s: %w", name, err)
	}
	return &Index{name: name, table: table, db: b.db, embedder: b.embedder}, nil
}

func (b *Builder) Load(ctx context.Context, name string) (port.VectorIndex, bool, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, false, err
	}

	var (
		model     string
		dimension int
	)
	err = b.db.QueryRowContext(ctx,
		`SELECT embedding_model, dimension FROM `+registryTable+` WHERE name = $1`, name,
	).Scan(&model, &dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up index %s: %w", name, err)
	}

	if model != b.embedder.ModelName() || dimension != b.embedder.Dimension() {
		return nil, false, fmt.Errorf("%w: index uses %s (%d dims), embedder is %s (%d dims)",
			domain.ErrIndexIncompatible, model, dimension, b.embedder.ModelName(), b.embedder.Dimension())
	}

	var exists bool
	if err := b.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("failed to check index table: %w", err)
	}
	if !exists {
		return nil, false, fmt.Errorf("%w: %s is registered but its table is missing", domain.ErrIndexCorrupt, name)
	}

	return &Index{name: name, table: table, db: b.db, embedder: b.embedder}, true, nil
}

func (b *Builder) Close() error {
	return b.db.Close()
}

// Index searches one index table by cosine distance.
type Index struct {
	name     string
	table    string
	db       *sql.DB
	embedder port.Embedder
}

func (idx *Index) Name() string {
	return idx.name
}

func (idx *Index) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedChunk, error) {
	if topK <= 0 {
		return []domain.RetrievedChunk{}, nil
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM `+idx.table+`
		ORDER BY embedding <=> $1, chunk_id
		LIMIT $2`,
		pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := []domain.RetrievedChunk{}
	for rows.Next() {
		var (
			chunk domain.RetrievedChunk
			meta  []byte
		)
		if err := rows.Scan(&chunk.Text, &meta, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(meta, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", domain.ErrIndexCorrupt, err)
		}
		results = append(results, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Close is a no-op; the connection pool belongs to the Builder.
func (idx *Index) Close() error {
	return nil
}
