package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"finrag/internal/domain"
	"finrag/internal/metrics"
	"finrag/internal/port"
)

const DefaultJudgeConcurrency = 4

const judgePromptTemplate = `Rate the relevance of this excerpt to the query on a scale of 0-10.
Only respond with a number between 0 and 10, nothing else.

Query: %s

Excerpt: %s

Relevance score (0-10):`

// JudgePrompt builds the prompt sent to the judge for one chunk.
func JudgePrompt(query, text string) string {
	return fmt.Sprintf(judgePromptTemplate, query, text)
}

// ParseRelevance reads a judge reply as a score in [0,10].
func ParseRelevance(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	score, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrJudgeScoreInvalid, s)
	}
	if math.IsNaN(score) || score < 0 || score > 10 {
		return 0, fmt.Errorf("%w: %v out of range", domain.ErrJudgeScoreInvalid, score)
	}
	return score, nil
}

// Reranker orders chunks by judge-assigned relevance.
type Reranker struct {
	judge       port.JudgeLLM
	concurrency int
	logger      *slog.Logger
}

func NewReranker(judge port.JudgeLLM, concurrency int, logger *slog.Logger) *Reranker {
	if concurrency <= 0 {
		concurrency = DefaultJudgeConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{judge: judge, concurrency: concurrency, logger: logger}
}

// Rerank scores every chunk and sorts by relevance, highest first. Chunks with
// equal relevance keep their retrieval order. A judge failure or unreadable
// reply scores the chunk 0. Once ctx is done no further judge calls start and
// the context error is returned.
func (r *Reranker) Rerank(ctx context.Context, chunks []domain.RetrievedChunk, query string) ([]domain.ScoredChunk, error) {
	scored := make([]domain.ScoredChunk, len(chunks))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		scored[i].Chunk = c
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			scored[i].Relevance = r.score(ctx, c, query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Relevance > scored[b].Relevance
	})
	return scored, nil
}

func (r *Reranker) score(ctx context.Context, c domain.RetrievedChunk, query string) float64 {
	reply, err := r.judge.Score(ctx, JudgePrompt(query, c.Text))
	if err != nil {
		metrics.JudgeScores.WithLabelValues("error").Inc()
		r.logger.Warn("judge call failed", "report", c.ReportName(), "error", err)
		return 0
	}

	score, err := ParseRelevance(reply)
	if err != nil {
		metrics.JudgeScores.WithLabelValues("invalid").Inc()
		r.logger.Warn("judge reply ignored", "report", c.ReportName(), "error", err)
		return 0
	}

	metrics.JudgeScores.WithLabelValues("ok").Inc()
	return score
}
