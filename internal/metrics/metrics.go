package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every finrag collector. The CLI serves it on --metrics-addr.
var Registry = prometheus.NewRegistry()

var (
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_cache_requests_total",
			Help: "Cache lookups by namespace and result (hit, miss, error)",
		},
		[]string{"namespace", "result"},
	)
	CacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_cache_writes_total",
			Help: "Cache writes by namespace and result (ok, error)",
		},
		[]string{"namespace", "result"},
	)
	JudgeScores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_judge_scores_total",
			Help: "Judge calls by outcome (ok, invalid, error)",
		},
		[]string{"outcome"},
	)
	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finrag_retrieval_duration_seconds",
			Help:    "Index retrieval latency, by cache result",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"cache"},
	)
	EmbeddingBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_embedding_batches_total",
			Help: "Embedding provider batch calls by model and result",
		},
		[]string{"model", "result"},
	)
	ParsedReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_parsed_reports_total",
			Help: "Reports handled by the indexer, by source (parsed, cached, error)",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(
		CacheRequests,
		CacheWrites,
		JudgeScores,
		RetrievalDuration,
		EmbeddingBatches,
		ParsedReports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
