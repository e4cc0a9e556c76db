package llm

import "context"

const (
	judgeTemperature = 0.1
	judgeMaxTokens   = 10
)

// Judge asks a chat model for a relevance score and returns the raw reply.
type Judge struct {
	llm Completer
}

func NewJudge(llm Completer) *Judge {
	return &Judge{llm: llm}
}

func (j *Judge) Score(ctx context.Context, prompt string) (string, error) {
	return j.llm.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
	})
}
