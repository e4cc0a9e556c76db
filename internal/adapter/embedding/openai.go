package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"finrag/internal/adapter/httpx"
)

// OpenAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey      string
	model       string
	baseURL     string
	dimension   int
	batchSize   int
	concurrency int
	client      *httpx.Client
}

type OpenAIConfig struct {
	APIKeyEnv   string
	Model       string
	BaseURL     string
	Dimension   int // overrides the per-model default when > 0
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	return newOpenAIEmbedder(apiKey, cfg), nil
}

func NewOllamaEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return newOpenAIEmbedder("ollama", cfg)
}

func newOpenAIEmbedder(apiKey string, cfg OpenAIConfig) *OpenAIEmbedder {
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = openAIDimension(cfg.Model)
	}
	return &OpenAIEmbedder{
		apiKey:      apiKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		dimension:   dimension,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		client:      httpx.New(cfg.Timeout),
	}
}

func openAIDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3", "mxbai-embed-large":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, e.model, texts, e.batchSize, e.concurrency, e.embedBatch)
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	var embResp embeddingResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if err := e.client.PostJSON(ctx, e.baseURL+"/embeddings", headers, reqBody, &embResp); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("API returned no embedding for input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
