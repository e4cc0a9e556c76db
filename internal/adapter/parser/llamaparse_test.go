package parser

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T, srv *httptest.Server) (*LlamaParse, string) {
	t.Helper()
	t.Setenv("FINRAG_TEST_LLAMA_KEY", "llx-test")
	dir := t.TempDir()
	p, err := NewLlamaParse(Config{
		BaseURL:      srv.URL,
		APIKeyEnv:    "FINRAG_TEST_LLAMA_KEY",
		ParsedDir:    filepath.Join(dir, "parsed"),
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)

	pdf := filepath.Join(dir, "acme-2023.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 fake"), 0644))
	return p, pdf
}

func TestLlamaParseWritesMarkdown(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer llx-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "markdown", r.FormValue("result_type"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "acme-2023.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4 fake", string(data))

		json.NewEncoder(w).Encode(jobResponse{ID: "job-1", Status: jobPending})
	})
	mux.HandleFunc("/api/parsing/job/job-1", func(w http.ResponseWriter, r *http.Request) {
		status := jobPending
		if atomic.AddInt32(&polls, 1) >= 3 {
			status = jobSuccess
		}
		json.NewEncoder(w).Encode(jobResponse{ID: "job-1", Status: status})
	})
	mux.HandleFunc("/api/parsing/job/job-1/result/markdown", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markdown":"# ACME 2023\n\nRevenue grew 10%.","job_metadata":{"credits_used":1}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, pdf := newTestParser(t, srv)

	out, err := p.Parse(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "acme-2023.md", filepath.Base(out))
	assert.Equal(t, p.OutputPath(pdf), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# ACME 2023\n\nRevenue grew 10%.", string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestLlamaParseJobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobResponse{ID: "job-2", Status: jobPending})
	})
	mux.HandleFunc("/api/parsing/job/job-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobResponse{ID: "job-2", Status: jobError, ErrorMessage: "corrupt pdf"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, pdf := newTestParser(t, srv)
	_, err := p.Parse(context.Background(), pdf)
	assert.ErrorContains(t, err, "corrupt pdf")
	_, statErr := os.Stat(p.OutputPath(pdf))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLlamaParseCancelledWhilePolling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobResponse{ID: "job-3", Status: jobPending})
	})
	mux.HandleFunc("/api/parsing/job/job-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobResponse{ID: "job-3", Status: jobPending})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, pdf := newTestParser(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := p.Parse(ctx, pdf)
	assert.Error(t, err)
}

func TestNewLlamaParseRequiresKey(t *testing.T) {
	t.Setenv("FINRAG_TEST_NO_KEY", "")
	_, err := NewLlamaParse(Config{APIKeyEnv: "FINRAG_TEST_NO_KEY", ParsedDir: t.TempDir()})
	assert.ErrorContains(t, err, "FINRAG_TEST_NO_KEY")
}
