package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"finrag/internal/domain"
	"finrag/internal/port"
)

func chunk(text, report string) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Text:     text,
		Score:    0.5,
		Metadata: map[string]string{domain.MetaReportName: report},
	}
}

type fakeIndex struct {
	name    string
	results []domain.RetrievedChunk
	err     error
	calls   atomic.Int32
	topKs   []int
	closed  atomic.Bool
	mu      sync.Mutex
}

func (f *fakeIndex) Retrieve(_ context.Context, _ string, topK int) ([]domain.RetrievedChunk, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.topKs = append(f.topKs, topK)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *fakeIndex) Name() string { return f.name }

func (f *fakeIndex) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeQueryCache struct {
	mu      sync.Mutex
	entries map[string][]domain.RetrievedChunk
	gets    int
	puts    int
}

func newFakeQueryCache() *fakeQueryCache {
	return &fakeQueryCache{entries: map[string][]domain.RetrievedChunk{}}
}

func (c *fakeQueryCache) GetQueryResults(_ context.Context, query string) ([]domain.RetrievedChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.entries[query]
	return r, ok
}

func (c *fakeQueryCache) PutQueryResults(_ context.Context, query string, results []domain.RetrievedChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[query] = results
}

type fakeAnswer struct {
	reply  string
	err    error
	chunks []domain.RetrievedChunk
}

func (a *fakeAnswer) Generate(_ context.Context, _ string, chunks []domain.RetrievedChunk) (string, error) {
	a.chunks = chunks
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

// judgeFunc adapts a function to port.JudgeLLM.
type judgeFunc func(ctx context.Context, prompt string) (string, error)

func (f judgeFunc) Score(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// repliesByExcerpt answers with the reply whose key appears in the excerpt.
func repliesByExcerpt(replies map[string]string) port.JudgeLLM {
	return judgeFunc(func(_ context.Context, prompt string) (string, error) {
		excerpt := prompt[strings.Index(prompt, "Excerpt: "):]
		for k, v := range replies {
			if strings.Contains(excerpt, k) {
				return v, nil
			}
		}
		return "", errors.New("no scripted reply")
	})
}

// fakeParser writes canned text for each PDF into dir.
type fakeParser struct {
	dir   string
	texts map[string]string
	calls atomic.Int32
}

func (p *fakeParser) Parse(_ context.Context, pdfPath string) (string, error) {
	p.calls.Add(1)
	name := filepath.Base(pdfPath)
	text, ok := p.texts[name]
	if !ok {
		return "", errors.New("parse failed: " + name)
	}
	out := filepath.Join(p.dir, strings.TrimSuffix(name, filepath.Ext(name))+".md")
	if err := os.WriteFile(out, []byte(text), 0644); err != nil {
		return "", err
	}
	return out, nil
}
