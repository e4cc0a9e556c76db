package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"finrag/internal/adapter/httpx"
)

// OpenAIChat is an OpenAI-compatible /chat/completions client.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string
	client  *httpx.Client
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

func NewOpenAIChat(cfg OpenAIConfig) (*OpenAIChat, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found. Set %s environment variable", cfg.APIKeyEnv)
		}
	}

	return &OpenAIChat{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  apiKey,
		model:   cfg.Model,
		client:  httpx.New(cfg.Timeout),
	}, nil
}

func (c *OpenAIChat) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var messages []ChatMessage
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.Prompt})

	body := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var chatResp ChatResponse
	if err := c.client.PostJSON(ctx, c.baseURL+"/chat/completions", headers, body, &chatResp); err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (c *OpenAIChat) Model() string {
	return c.model
}
