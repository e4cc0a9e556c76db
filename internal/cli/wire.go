package cli

import (
	"context"
	"fmt"
	"log/slog"

	"finrag/config"
	"finrag/internal/adapter/analyzer"
	"finrag/internal/adapter/cache"
	"finrag/internal/adapter/chunker"
	"finrag/internal/adapter/embedding"
	"finrag/internal/adapter/llm"
	"finrag/internal/adapter/memstore"
	"finrag/internal/adapter/parser"
	"finrag/internal/adapter/pgstore"
	"finrag/internal/adapter/store"
	"finrag/internal/port"
	"finrag/internal/usecase"
)

// needs selects which external services a command talks to. Services that
// are not needed are not constructed, so their API keys are not required.
type needs struct {
	parser bool
	judge  bool
	answer bool
}

// app is a wired pipeline plus everything that has to be closed with it.
type app struct {
	pipeline *usecase.Pipeline
	cache    *cache.Cache
	closers  []func() error
}

func (a *app) Close() {
	if err := a.pipeline.Close(); err != nil {
		logger.Warn("failed to close index", "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("failed to release resource", "error", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config, n needs) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		for i := len(a.closers) - 1; i >= 0; i-- {
			_ = a.closers[i]()
		}
		return nil, err
	}

	if err := cfg.EnsureDataDirs(); err != nil {
		return nil, err
	}

	c, err := newCache(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	var (
		queryCache port.QueryCache
		docCache   usecase.DocumentCache
	)
	if c != nil {
		a.cache = c
		a.closers = append(a.closers, c.Close)
		queryCache = c
		docCache = c
	}

	embedder, closeEmbedder, err := newEmbedder(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to create embedder: %w", err))
	}
	if closeEmbedder != nil {
		a.closers = append(a.closers, closeEmbedder)
	}
	if c != nil && cfg.Embedding.Cache {
		embedder = embedding.NewCachedEmbedder(embedder, c)
	}

	builder, closeBuilder, err := newIndexBuilder(ctx, cfg, embedder)
	if err != nil {
		return fail(err)
	}
	if closeBuilder != nil {
		a.closers = append(a.closers, closeBuilder)
	}

	var docParser port.DocumentParser
	if n.parser {
		docParser, err = newParser(cfg)
		if err != nil {
			return fail(fmt.Errorf("failed to create parser: %w", err))
		}
	}

	tok := analyzer.NewTokenizer()
	ck := chunker.NewLineChunker(cfg.Index.ChunkTokens, cfg.Index.ChunkOverlap, tok)
	indexer := usecase.NewIndexer(docParser, ck, builder, docCache, cfg.Parser.NumWorkers, logger)

	var reranker *usecase.Reranker
	if n.judge {
		completer, err := newCompleter(cfg.Judge.LLMConfig)
		if err != nil {
			return fail(fmt.Errorf("failed to create judge model: %w", err))
		}
		reranker = usecase.NewReranker(llm.NewJudge(completer), cfg.Judge.Concurrency, logger)
	}

	var answer port.AnswerLLM
	if n.answer {
		completer, err := newCompleter(cfg.LLM)
		if err != nil {
			return fail(fmt.Errorf("failed to create answer model: %w", err))
		}
		answer = llm.NewAnswerer(completer, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	}

	a.pipeline = usecase.NewPipeline(indexer, queryCache, reranker, answer, logger)
	return a, nil
}

// newCache returns nil when caching is disabled or Redis cannot be reached.
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		rb := cache.NewRedisBackend(cache.RedisOptions{
			Host:        cfg.Cache.Redis.Host,
			Port:        cfg.Cache.Redis.Port,
			Password:    cfg.Cache.Redis.Password,
			DB:          cfg.Cache.Redis.DB,
			DialTimeout: cfg.Cache.Redis.DialTimeout,
		})
		if err := rb.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, continuing without cache",
				"addr", fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port), "error", err)
			_ = rb.Close()
			return nil, nil
		}
		backend = rb
	case "bolt":
		bb, err := cache.NewBoltBackend(cfg.CacheBoltPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open cache file: %w", err)
		}
		backend = bb
	case "memory":
		backend = cache.NewMemoryBackend(cfg.Cache.MaxEntries)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}

	return cache.New(backend,
		cache.WithTTLs(cache.TTLs{
			Query:     cfg.Cache.TTL.Query,
			Embedding: cfg.Cache.TTL.Embedding,
			Document:  cfg.Cache.TTL.Document,
		}),
		cache.WithLogger(logger),
	), nil
}

func newEmbedder(cfg *config.Config) (port.Embedder, func() error, error) {
	e := cfg.Embedding
	openAICfg := embedding.OpenAIConfig{
		APIKeyEnv:   e.APIKeyEnv,
		Model:       e.Model,
		BaseURL:     e.BaseURL,
		Dimension:   e.Dimension,
		Timeout:     e.Timeout,
		BatchSize:   e.BatchSize,
		Concurrency: e.Concurrency,
	}

	switch e.Provider {
	case "gemini":
		emb, err := embedding.NewGeminiEmbedder(embedding.GeminiConfig{
			APIKeyEnv:   e.APIKeyEnv,
			Model:       e.Model,
			BaseURL:     e.BaseURL,
			Dimension:   e.Dimension,
			Timeout:     e.Timeout,
			BatchSize:   e.BatchSize,
			Concurrency: e.Concurrency,
		})
		return emb, nil, err
	case "openai":
		emb, err := embedding.NewOpenAIEmbedder(openAICfg)
		return emb, nil, err
	case "jina":
		if openAICfg.BaseURL == "" {
			openAICfg.BaseURL = "https://api.jina.ai/v1"
		}
		emb, err := embedding.NewOpenAIEmbedder(openAICfg)
		return emb, nil, err
	case "ollama":
		return embedding.NewOllamaEmbedder(openAICfg), nil, nil
	case "hugot":
		emb, err := embedding.NewHugotEmbedder(embedding.HugotConfig{
			Model:     e.Model,
			ModelDir:  e.ModelDir,
			Dimension: e.Dimension,
			BatchSize: e.BatchSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return emb, emb.Close, nil
	case "hash":
		return embedding.NewHashEmbedder(e.Dimension), nil, nil
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

func newIndexBuilder(ctx context.Context, cfg *config.Config, embedder port.Embedder) (port.IndexBuilder, func() error, error) {
	switch cfg.Index.Backend {
	case "bolt":
		return store.NewBoltBuilder(cfg.IndexesDir(), embedder), nil, nil
	case "pgvector":
		b, err := pgstore.Open(ctx, cfg.Index.PostgresDSN, embedder)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "memory":
		return memstore.NewMemoryStore(embedder), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}
}

func newParser(cfg *config.Config) (port.DocumentParser, error) {
	switch cfg.Parser.Provider {
	case "llamaparse":
		return parser.NewLlamaParse(parser.Config{
			BaseURL:      cfg.Parser.BaseURL,
			APIKeyEnv:    cfg.Parser.APIKeyEnv,
			ResultType:   cfg.Parser.ResultType,
			ParsedDir:    cfg.ParsedDir(),
			PollInterval: cfg.Parser.PollInterval,
			Timeout:      cfg.Parser.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported parser: %s", cfg.Parser.Provider)
	}
}

func newCompleter(c config.LLMConfig) (llm.Completer, error) {
	switch c.Provider {
	case "gemini":
		return llm.NewGemini(llm.GeminiConfig{
			BaseURL:   c.BaseURL,
			APIKeyEnv: c.APIKeyEnv,
			Model:     c.Model,
			Timeout:   c.Timeout,
		})
	case "openai":
		return llm.NewOpenAIChat(llm.OpenAIConfig{
			BaseURL:   c.BaseURL,
			APIKeyEnv: c.APIKeyEnv,
			Model:     c.Model,
			Timeout:   c.Timeout,
		})
	case "ollama":
		baseURL := c.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return llm.NewOpenAIChat(llm.OpenAIConfig{
			BaseURL: baseURL,
			Model:   c.Model,
			Timeout: c.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", c.Provider)
	}
}
