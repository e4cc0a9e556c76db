package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/adapter/httpx"
)

func TestOpenAIEmbedderReordersByIndex(t *testing.T) {
	t.Setenv("FINRAG_TEST_OPENAI_KEY", "sk-test")

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "FINRAG_TEST_OPENAI_KEY", BaseURL: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, vecs)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbedderMissingKey(t *testing.T) {
	t.Setenv("FINRAG_TEST_EMPTY_KEY", "")
	_, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "FINRAG_TEST_EMPTY_KEY"})
	assert.ErrorContains(t, err, "FINRAG_TEST_EMPTY_KEY")
}

func TestOpenAIEmbedderAPIError(t *testing.T) {
	t.Setenv("FINRAG_TEST_OPENAI_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "FINRAG_TEST_OPENAI_KEY", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.EmbedQuery(context.Background(), "q")
	assert.ErrorContains(t, err, "model not found")
}

func TestGeminiEmbedderTaskTypes(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")

	var tasks []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/text-embedding-004:batchEmbedContents"), r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var resp geminiBatchResponse
		for _, item := range req.Requests {
			tasks = append(tasks, item.TaskType)
			assert.Equal(t, "models/text-embedding-004", item.Model)
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float32 `json:"values"`
			}{Values: []float32{float32(len(item.Content.Parts[0].Text))}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: srv.URL, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-004", e.ModelName())
	assert.Equal(t, 768, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"one", "three"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {5}}, vecs)

	q, err := e.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, q)

	assert.Equal(t, []string{taskRetrievalDoc, taskRetrievalDoc, taskRetrievalQuery}, tasks)
}

func TestGeminiEmbedderCountMismatch(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "0 embeddings for 1 inputs")
}

func TestGeminiEmbedderDimensionFollowsModel(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-embedding-001:batchEmbedContents"), r.URL.Path)
		var resp geminiBatchResponse
		resp.Embeddings = append(resp.Embeddings, struct {
			Values []float32 `json:"values"`
		}{Values: make([]float32, 3072)})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: srv.URL, Model: "gemini-embedding-001"})
	require.NoError(t, err)

	vec, err := e.EmbedQuery(context.Background(), "revenue")
	require.NoError(t, err)
	assert.Equal(t, len(vec), e.Dimension())
}

func TestEmbedderDimensionOverride(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")
	t.Setenv("FINRAG_TEST_OPENAI_KEY", "sk-test")

	g, err := NewGeminiEmbedder(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", Model: "text-embedding-004", Dimension: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, g.Dimension())

	o, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "FINRAG_TEST_OPENAI_KEY", Model: "text-embedding-3-large", Dimension: 512})
	require.NoError(t, err)
	assert.Equal(t, 512, o.Dimension())

	assert.Equal(t, 768, NewOllamaEmbedder(OpenAIConfig{}).Dimension())
	assert.Equal(t, 1024, NewOllamaEmbedder(OpenAIConfig{Dimension: 1024}).Dimension())
}

func TestGeminiEmbedderErrorOmitsAPIKey(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "AIzaSECRET123")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	e, err := NewGeminiEmbedder(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: baseURL})
	require.NoError(t, err)
	e.client = httpx.New(time.Second).WithMaxRetries(0)

	_, err = e.EmbedQuery(context.Background(), "revenue")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSECRET123")
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(4)
	a, _ := e.EmbedQuery(context.Background(), "abcdef")
	b, _ := e.EmbedQuery(context.Background(), "abcdef")
	assert.Equal(t, a, b)
	assert.Len(t, a, 4)
	assert.InDelta(t, 0.097, a[0], 1e-6)
}
