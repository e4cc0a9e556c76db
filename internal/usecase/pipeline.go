package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"finrag/internal/adapter/fs"
	"finrag/internal/domain"
	"finrag/internal/port"
)

const (
	DefaultIndexName  = "financial_reports"
	DefaultTopK       = 10
	DefaultAnswerTopK = 5
	maxAnswerSources  = 5
)

// QueryOptions controls one Pipeline.Query call. Zero TopK and AnswerTopK
// fall back to DefaultTopK and DefaultAnswerTopK.
type QueryOptions struct {
	TopK           int
	Rerank         bool
	GenerateAnswer bool
	AnswerTopK     int
}

// DefaultQueryOptions retrieves 10 chunks and reranks them.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		TopK:       DefaultTopK,
		Rerank:     true,
		AnswerTopK: DefaultAnswerTopK,
	}
}

// Pipeline ties ingestion, indexing and querying together. Query is valid
// only after IngestAndIndex or a successful LoadExistingIndex.
type Pipeline struct {
	indexer  *Indexer
	cache    port.QueryCache
	reranker *Reranker
	answer   port.AnswerLLM
	logger   *slog.Logger

	mu        sync.RWMutex
	processor *QueryProcessor
}

// NewPipeline builds a pipeline. cache, reranker and answer may be nil.
func NewPipeline(indexer *Indexer, cache port.QueryCache, reranker *Reranker, answer port.AnswerLLM, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		indexer:  indexer,
		cache:    cache,
		reranker: reranker,
		answer:   answer,
		logger:   logger,
	}
}

// IngestAndIndex resolves paths to PDF reports, parses and indexes them under
// indexName and binds the new index for querying.
func (p *Pipeline) IngestAndIndex(ctx context.Context, paths []string, indexName string) (port.VectorIndex, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	reports, err := fs.ResolveReports(paths)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, domain.ErrNoValidInputs
	}

	idx, err := p.indexer.Index(ctx, reports, indexName)
	if err != nil {
		return nil, err
	}

	p.bind(idx)
	p.logger.Info("index ready", "index", indexName, "reports", len(reports))
	return idx, nil
}

// LoadExistingIndex binds a previously built index. It reports false when no
// index called name exists.
func (p *Pipeline) LoadExistingIndex(ctx context.Context, name string) (port.VectorIndex, bool, error) {
	if name == "" {
		name = DefaultIndexName
	}

	idx, found, err := p.indexer.Builder().Load(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load index %s: %w", name, err)
	}
	if !found {
		return nil, false, nil
	}

	p.bind(idx)
	p.logger.Info("index loaded", "index", name)
	return idx, true, nil
}

func (p *Pipeline) bind(idx port.VectorIndex) {
	p.mu.Lock()
	old := p.processor
	p.processor = NewQueryProcessor(idx, p.cache, p.answer, p.logger)
	p.mu.Unlock()

	if old != nil && old.Index() != idx {
		if err := old.Index().Close(); err != nil {
			p.logger.Warn("failed to close previous index", "index", old.Index().Name(), "error", err)
		}
	}
}

// Query retrieves chunks for query and optionally reranks them and generates
// an answer. When answer generation fails the chunks are still returned
// alongside an error wrapping domain.ErrAnswerGenerationFailed.
func (p *Pipeline) Query(ctx context.Context, query string, opts QueryOptions) (domain.QueryResult, error) {
	p.mu.RLock()
	processor := p.processor
	p.mu.RUnlock()

	if processor == nil {
		return domain.QueryResult{}, domain.ErrNotIndexed
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.AnswerTopK <= 0 {
		opts.AnswerTopK = DefaultAnswerTopK
	}

	logger := p.logger.With("query_id", uuid.NewString())
	logger.Debug("query", "text", query, "top_k", opts.TopK, "rerank", opts.Rerank, "answer", opts.GenerateAnswer)

	chunks, err := processor.ProcessQuery(ctx, query, opts.TopK)
	if err != nil {
		return domain.QueryResult{}, err
	}

	if opts.Rerank && len(chunks) > 0 {
		if p.reranker == nil {
			logger.Warn("rerank requested but no judge is configured")
		} else {
			scored, err := p.reranker.Rerank(ctx, chunks, query)
			if err != nil {
				return domain.QueryResult{}, err
			}
			chunks = make([]domain.RetrievedChunk, len(scored))
			for i, s := range scored {
				chunks[i] = s.Chunk
			}
		}
	}

	if !opts.GenerateAnswer {
		return domain.QueryResult{Chunks: chunks}, nil
	}

	answer, err := processor.GenerateAnswer(ctx, query, opts.AnswerTopK)
	if err != nil {
		logger.Error("answer generation failed", "error", err)
		return domain.QueryResult{Chunks: chunks}, err
	}

	sources := chunks
	if len(sources) > maxAnswerSources {
		sources = sources[:maxAnswerSources]
	}
	return domain.QueryResult{
		Answer: &domain.AnswerResult{Answer: answer, Sources: sources},
	}, nil
}

// Close releases the bound index.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	processor := p.processor
	p.processor = nil
	p.mu.Unlock()

	if processor == nil {
		return nil
	}
	return processor.Index().Close()
}

// Indexer returns the indexer used by IngestAndIndex.
func (p *Pipeline) Indexer() *Indexer {
	return p.indexer
}
