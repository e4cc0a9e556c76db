package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"finrag/internal/adapter/httpx"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	taskRetrievalDoc   = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery = "RETRIEVAL_QUERY"

	// geminiKeyHeader carries the API key so it never appears in request URLs.
	geminiKeyHeader = "x-goog-api-key"
)

// GeminiEmbedder calls the Gemini batchEmbedContents endpoint. Documents and
// queries are embedded with their own retrieval task types.
type GeminiEmbedder struct {
	apiKey      string
	model       string
	baseURL     string
	dimension   int
	batchSize   int
	concurrency int
	client      *httpx.Client
}

type GeminiConfig struct {
	APIKeyEnv   string
	Model       string
	BaseURL     string
	Dimension   int // overrides the per-model default when > 0
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = geminiDimension(model)
	}
	return &GeminiEmbedder{
		apiKey:      apiKey,
		model:       model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		dimension:   dimension,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		client:      httpx.New(cfg.Timeout),
	}, nil
}

func geminiDimension(model string) int {
	switch model {
	case "gemini-embedding-001", "gemini-embedding-exp-03-07":
		return 3072
	default:
		return 768
	}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, e.model, texts, e.batchSize, e.concurrency, func(ctx context.Context, batch []string) ([][]float32, error) {
		return e.embedBatch(ctx, batch, taskRetrievalDoc)
	})
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string, task string) ([][]float32, error) {
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:    "models/" + e.model,
			Content:  geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType: task,
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.baseURL, e.model)
	headers := map[string]string{geminiKeyHeader: e.apiKey}
	var resp geminiBatchResponse
	if err := e.client.PostJSON(ctx, endpoint, headers, req, &resp); err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
