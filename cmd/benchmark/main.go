package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"finrag/internal/adapter/cache"
	"finrag/internal/adapter/embedding"
	"finrag/internal/adapter/store"
	"finrag/internal/domain"
	"finrag/internal/usecase"
)

var (
	subjects = []string{"Revenue", "Operating costs", "Net income", "Gross margin", "Free cash flow", "Capital expenditure", "Headcount", "Dividend per share"}
	verbs    = []string{"grew", "fell", "remained flat", "improved", "declined", "recovered"}
	periods  = []string{"in Q1", "in Q2", "in Q3", "in Q4", "year over year", "in the first half", "in fiscal 2023"}
	regions  = []string{"in Europe", "in North America", "in Asia Pacific", "across all segments", "in the retail division"}
)

func main() {
	backend := flag.String("cache", "memory", "cache backend: memory, bolt, redis")
	redisHost := flag.String("redis-host", "localhost", "redis host")
	redisPort := flag.Int("redis-port", 6379, "redis port")
	numChunks := flag.Int("chunks", 2000, "number of synthetic report chunks")
	numQueries := flag.Int("queries", 50, "number of distinct queries")
	topK := flag.Int("k", 10, "number of results per query")
	flag.Parse()

	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "finrag-bench")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	c, err := openCache(ctx, *backend, tmpDir, *redisHost, *redisPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if _, err := c.Clear(ctx, "query:bench*"); err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing cache: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(42))
	embedder := embedding.NewHashEmbedder(0)
	builder := store.NewBoltBuilder(filepath.Join(tmpDir, "indexes"), embedder)

	buildStart := time.Now()
	idx, err := builder.Build(ctx, "bench", syntheticChunks(rng, *numChunks))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building index: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()
	buildTime := time.Since(buildStart)

	queries := make([]string, *numQueries)
	for i := range queries {
		queries[i] = fmt.Sprintf("bench %s %s %s", pick(rng, subjects), pick(rng, verbs), pick(rng, periods))
	}

	processor := usecase.NewQueryProcessor(idx, c, nil, nil)

	fmt.Println("QUERY CACHE BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Cache backend:  %s\n", *backend)
	fmt.Printf("Chunks indexed: %d (built in %s)\n", *numChunks, buildTime.Round(time.Millisecond))
	fmt.Printf("Embedder:       %s (%d dims)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Printf("Queries:        %d, top-%d\n", *numQueries, *topK)
	fmt.Println(strings.Repeat("-", 70))

	cold, err := run(ctx, processor, queries, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cold pass failed: %v\n", err)
		os.Exit(1)
	}
	warm, err := run(ctx, processor, queries, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warm pass failed: %v\n", err)
		os.Exit(1)
	}

	report("Cold (index)", cold)
	report("Warm (cache)", warm)

	fmt.Println(strings.Repeat("=", 70))
	speedup := float64(percentile(cold, 50)) / float64(max(percentile(warm, 50), 1))
	fmt.Printf("Median speedup: %.1fx\n", speedup)
	if speedup < 1.5 {
		fmt.Println("  Status: cache gives little benefit at this index size")
	} else {
		fmt.Println("  Status: cache hits skip index retrieval as expected")
	}
}

func openCache(ctx context.Context, backend, dir, host string, port int) (*cache.Cache, error) {
	switch backend {
	case "memory":
		return cache.New(cache.NewMemoryBackend(0)), nil
	case "bolt":
		b, err := cache.NewBoltBackend(filepath.Join(dir, "cache.db"))
		if err != nil {
			return nil, err
		}
		return cache.New(b), nil
	case "redis":
		r := cache.NewRedisBackend(cache.RedisOptions{Host: host, Port: port})
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, err
		}
		return cache.New(r), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
}

func syntheticChunks(rng *rand.Rand, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		report := fmt.Sprintf("report-%02d.pdf", i%25)
		text := fmt.Sprintf("%s %s %d%% %s %s.", pick(rng, subjects), pick(rng, verbs), rng.Intn(30)+1, pick(rng, periods), pick(rng, regions))
		chunks[i] = domain.Chunk{
			ID:    fmt.Sprintf("chunk-%05d", i),
			DocID: report,
			Index: i,
			Text:  text,
			Metadata: map[string]string{
				domain.MetaReportName: report,
				domain.MetaReportID:   fmt.Sprintf("report_%d", i%25),
			},
		}
	}
	return chunks
}

func run(ctx context.Context, p *usecase.QueryProcessor, queries []string, topK int) ([]time.Duration, error) {
	durations := make([]time.Duration, 0, len(queries))
	for _, q := range queries {
		start := time.Now()
		if _, err := p.ProcessQuery(ctx, q, topK); err != nil {
			return nil, err
		}
		durations = append(durations, time.Since(start))
	}
	return durations, nil
}

func report(label string, d []time.Duration) {
	fmt.Printf("%-14s p50 %-10s p95 %-10s max %s\n", label,
		percentile(d, 50).Round(time.Microsecond),
		percentile(d, 95).Round(time.Microsecond),
		percentile(d, 100).Round(time.Microsecond))
}

func percentile(d []time.Duration, p int) time.Duration {
	if len(d) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	i := (len(sorted) - 1) * p / 100
	return sorted[i]
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}
