package port

import (
	"context"

	"finrag/internal/domain"
)

// AnswerLLM synthesizes an answer to a question from retrieved context.
type AnswerLLM interface {
	Generate(ctx context.Context, prompt string, chunks []domain.RetrievedChunk) (string, error)
}

// JudgeLLM returns the raw judge reply for a scoring prompt.
type JudgeLLM interface {
	Score(ctx context.Context, prompt string) (string, error)
}
