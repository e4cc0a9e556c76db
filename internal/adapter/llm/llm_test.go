package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/adapter/httpx"
	"finrag/internal/domain"
)

func TestGeminiComplete(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "Rate this", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, 0.1, *req.GenerationConfig.Temperature)
		assert.Equal(t, 10, req.GenerationConfig.MaxOutputTokens)
		assert.Nil(t, req.SystemInstruction)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"7"},{"text":".5"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := NewJudge(g).Score(context.Background(), "Rate this")
	require.NoError(t, err)
	assert.Equal(t, "7.5", out)
}

func TestGeminiBlockedPrompt(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "g-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "SAFETY")
}

func TestGeminiErrorOmitsAPIKey(t *testing.T) {
	t.Setenv("FINRAG_TEST_GEMINI_KEY", "AIzaSECRET123")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	g, err := NewGemini(GeminiConfig{APIKeyEnv: "FINRAG_TEST_GEMINI_KEY", BaseURL: baseURL})
	require.NoError(t, err)
	g.client = httpx.New(time.Second).WithMaxRetries(0)

	_, err = g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSECRET123")
}

func TestOpenAIChatAnswer(t *testing.T) {
	t.Setenv("FINRAG_TEST_OPENAI_KEY", "sk-test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "Revenue grew 10%.")
		assert.Contains(t, req.Messages[1].Content, "Query: What was revenue growth?")

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Revenue grew 10%.\n"}}]}`))
	}))
	defer srv.Close()

	chat, err := NewOpenAIChat(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "FINRAG_TEST_OPENAI_KEY"})
	require.NoError(t, err)

	chunks := []domain.RetrievedChunk{{Text: "Revenue grew 10%.", Metadata: map[string]string{domain.MetaReportName: "a.pdf"}}}
	answer, err := NewAnswerer(chat, 0.2, 512).Generate(context.Background(), "What was revenue growth?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 10%.", answer)
}

func TestOpenAIChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	chat, err := NewOpenAIChat(OpenAIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = chat.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "no response")
}

func TestBuildAnswerPrompt(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{Text: "Revenue grew 10%.", Metadata: map[string]string{domain.MetaReportName: "a.pdf"}},
		{Text: "Costs fell 5%."},
	}
	prompt := BuildAnswerPrompt("What changed?", chunks)

	assert.Contains(t, prompt, "[1] (a.pdf)\nRevenue grew 10%.")
	assert.Contains(t, prompt, "[2] (Unknown)\nCosts fell 5%.")
	assert.True(t, strings.HasSuffix(prompt, "Query: What changed?\nAnswer: "))
}
