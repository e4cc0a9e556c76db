package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finrag/internal/domain"
	"finrag/internal/metrics"
)

// Namespace partitions the key space of a Cache.
type Namespace string

const (
	NamespaceQuery     Namespace = "query"
	NamespaceEmbedding Namespace = "embedding"
	NamespaceDocument  Namespace = "document"
)

const (
	DefaultQueryTTL     = time.Hour
	DefaultEmbeddingTTL = 24 * time.Hour
	DefaultDocumentTTL  = 7 * 24 * time.Hour
)

// ErrMiss is returned by a Backend when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend stores opaque values under flat string keys.
type Backend interface {
	// Get returns ErrMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteMatching removes every key matching a Redis-style glob and
	// returns how many were removed.
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	Close() error
}

// TTLs holds the default lifetime per namespace.
type TTLs struct {
	Query     time.Duration
	Embedding time.Duration
	Document  time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Query:     DefaultQueryTTL,
		Embedding: DefaultEmbeddingTTL,
		Document:  DefaultDocumentTTL,
	}
}

// Cache is a namespaced TTL cache with JSON-encoded values.
type Cache struct {
	backend Backend
	ttls    TTLs
	logger  *slog.Logger
}

type Option func(*Cache)

func WithTTLs(ttls TTLs) Option {
	return func(c *Cache) {
		if ttls.Query > 0 {
			c.ttls.Query = ttls.Query
		}
		if ttls.Embedding > 0 {
			c.ttls.Embedding = ttls.Embedding
		}
		if ttls.Document > 0 {
			c.ttls.Document = ttls.Document
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttls:    DefaultTTLs(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func compositeKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

func (c *Cache) defaultTTL(ns Namespace) time.Duration {
	switch ns {
	case NamespaceQuery:
		return c.ttls.Query
	case NamespaceEmbedding:
		return c.ttls.Embedding
	case NamespaceDocument:
		return c.ttls.Document
	default:
		return DefaultQueryTTL
	}
}

// Get decodes the value stored under (ns, key) into dst. found is false on a
// miss; backend failures wrap domain.ErrCacheUnavailable.
func (c *Cache) Get(ctx context.Context, ns Namespace, key string, dst any) (bool, error) {
	data, err := c.backend.Get(ctx, compositeKey(ns, key))
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %s value: %w", ns, err)
	}
	return true, nil
}

// Put stores value under (ns, key), replacing any previous value. A ttl of
// zero or less uses the namespace default.
func (c *Cache) Put(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s value: %w", ns, err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL(ns)
	}
	if err := c.backend.Set(ctx, compositeKey(ns, key), data, ttl); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Clear deletes every entry whose composite key matches pattern. An empty
// pattern clears everything.
func (c *Cache) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	n, err := c.backend.DeleteMatching(ctx, pattern)
	if err != nil {
		return n, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return n, nil
}

func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) lookup(ctx context.Context, ns Namespace, key string, dst any) bool {
	found, err := c.Get(ctx, ns, key, dst)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues(string(ns), "error").Inc()
		c.logger.Warn("cache read failed", "namespace", ns, "error", err)
		return false
	case !found:
		metrics.CacheRequests.WithLabelValues(string(ns), "miss").Inc()
		return false
	default:
		metrics.CacheRequests.WithLabelValues(string(ns), "hit").Inc()
		return true
	}
}

func (c *Cache) store(ctx context.Context, ns Namespace, key string, value any) {
	if err := c.Put(ctx, ns, key, value, 0); err != nil {
		metrics.CacheWrites.WithLabelValues(string(ns), "error").Inc()
		c.logger.Warn("cache write failed", "namespace", ns, "error", err)
		return
	}
	metrics.CacheWrites.WithLabelValues(string(ns), "ok").Inc()
}

func (c *Cache) GetQueryResults(ctx context.Context, query string) ([]domain.RetrievedChunk, bool) {
	var results []domain.RetrievedChunk
	if !c.lookup(ctx, NamespaceQuery, query, &results) {
		return nil, false
	}
	return results, true
}

func (c *Cache) PutQueryResults(ctx context.Context, query string, results []domain.RetrievedChunk) {
	c.store(ctx, NamespaceQuery, query, results)
}

func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	var vec []float32
	if !c.lookup(ctx, NamespaceEmbedding, text, &vec) {
		return nil, false
	}
	return vec, true
}

func (c *Cache) PutEmbedding(ctx context.Context, text string, vec []float32) {
	c.store(ctx, NamespaceEmbedding, text, vec)
}

func (c *Cache) GetDocument(ctx context.Context, id string) (domain.DocumentRecord, bool) {
	var rec domain.DocumentRecord
	if !c.lookup(ctx, NamespaceDocument, id, &rec) {
		return domain.DocumentRecord{}, false
	}
	return rec, true
}

func (c *Cache) PutDocument(ctx context.Context, rec domain.DocumentRecord) {
	c.store(ctx, NamespaceDocument, rec.ID, rec)
}
