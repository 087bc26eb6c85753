// Package llm wraps chat-completion providers behind a single Model contract.
package llm

import (
	"context"
)

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the provider-neutral model result.
type Completion struct {
	Content string
}

// Model generates a completion for an ordered list of messages.
type Model interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}
