// Package parser converts PDF reports to markdown through the LlamaParse API.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finrag/internal/adapter/httpx"
)

const (
	defaultBaseURL      = "https://api.cloud.llamaindex.ai"
	defaultPollInterval = 2 * time.Second
	defaultResultType   = "markdown"
)

const (
	jobPending = "PENDING"
	jobSuccess = "SUCCESS"
	jobError   = "ERROR"
	jobCancel  = "CANCELED"
)

// LlamaParse uploads a PDF, polls the parsing job and writes the result to
// <parsedDir>/<stem>.md.
type LlamaParse struct {
	baseURL      string
	apiKey       string
	resultType   string
	parsedDir    string
	pollInterval time.Duration
	client       *httpx.Client
}

type Config struct {
	BaseURL      string
	APIKeyEnv    string
	ResultType   string
	ParsedDir    string
	PollInterval time.Duration
	Timeout      time.Duration
}

type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func NewLlamaParse(cfg Config) (*LlamaParse, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	if cfg.ParsedDir == "" {
		return nil, fmt.Errorf("parsed output directory is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ResultType == "" {
		cfg.ResultType = defaultResultType
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &LlamaParse{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		resultType:   cfg.ResultType,
		parsedDir:    cfg.ParsedDir,
		pollInterval: cfg.PollInterval,
		client:       httpx.New(cfg.Timeout),
	}, nil
}

// OutputPath is where Parse writes the text of pdfPath.
func (p *LlamaParse) OutputPath(pdfPath string) string {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	ext := ".md"
	if p.resultType == "text" {
		ext = ".txt"
	}
	return filepath.Join(p.parsedDir, stem+ext)
}

func (p *LlamaParse) Parse(ctx context.Context, pdfPath string) (string, error) {
	jobID, err := p.upload(ctx, pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", pdfPath, err)
	}

	if err := p.wait(ctx, jobID); err != nil {
		return "", fmt.Errorf("parsing %s: %w", pdfPath, err)
	}

	text, err := p.result(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch result for %s: %w", pdfPath, err)
	}

	outPath := p.OutputPath(pdfPath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create parsed directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write parsed output: %w", err)
	}
	return outPath, nil
}

func (p *LlamaParse) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *LlamaParse) upload(ctx context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.WriteField("result_type", p.resultType); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/parsing/upload", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		for k, v := range p.headers() {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var job jobResponse
	if err := json.Unmarshal(raw, &job); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("upload response carried no job id")
	}
	return job.ID, nil
}

func (p *LlamaParse) wait(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		var job jobResponse
		if err := p.client.GetJSON(ctx, p.baseURL+"/api/parsing/job/"+jobID, p.headers(), &job); err != nil {
			return err
		}
		switch strings.ToUpper(job.Status) {
		case jobSuccess:
			return nil
		case jobError, jobCancel:
			if job.ErrorMessage != "" {
				return fmt.Errorf("job %s %s: %s", jobID, strings.ToLower(job.Status), job.ErrorMessage)
			}
			return fmt.Errorf("job %s %s", jobID, strings.ToLower(job.Status))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *LlamaParse) result(ctx context.Context, jobID string) (string, error) {
	out := map[string]json.RawMessage{}
	url := fmt.Sprintf("%s/api/parsing/job/%s/result/%s", p.baseURL, jobID, p.resultType)
	if err := p.client.GetJSON(ctx, url, p.headers(), &out); err != nil {
		return "", err
	}
	raw, ok := out[p.resultType]
	if !ok {
		return "", fmt.Errorf("result has no %q field", p.resultType)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("failed to decode %s result: %w", p.resultType, err)
	}
	return text, nil
}
