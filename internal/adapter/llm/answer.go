package llm

import (
	"context"
	"fmt"
	"strings"

	"finrag/internal/domain"
)

const answerSystemPrompt = `You answer questions about financial reports. Use only the provided context and cite the report names you rely on. If the context does not contain the answer, say so.`

// Answerer synthesizes an answer from retrieved chunks.
type Answerer struct {
	llm         Completer
	temperature float64
	maxTokens   int
}

func NewAnswerer(llm Completer, temperature float64, maxTokens int) *Answerer {
	return &Answerer{llm: llm, temperature: temperature, maxTokens: maxTokens}
}

func (a *Answerer) Generate(ctx context.Context, query string, chunks []domain.RetrievedChunk) (string, error) {
	answer, err := a.llm.Complete(ctx, CompletionRequest{
		System:      answerSystemPrompt,
		Prompt:      BuildAnswerPrompt(query, chunks),
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// BuildAnswerPrompt lays out the chunks as numbered context blocks followed by
// the question.
func BuildAnswerPrompt(query string, chunks []domain.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Context information is below.\n---------------------\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, c.ReportName(), strings.TrimSpace(c.Text))
	}
	sb.WriteString("---------------------\n")
	sb.WriteString("Given the context information and not prior knowledge, answer the query.\n")
	fmt.Fprintf(&sb, "Query: %s\nAnswer: ", query)
	return sb.String()
}
