// Package llm holds chat-completion clients and the answer and judge roles
// built on them.
package llm

import "context"

// Completer sends a single prompt to a chat model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Model() string
}

type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}
