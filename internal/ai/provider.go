package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Provider is a chat completion backend. Errors from the remote side are
// *pipeline.Error values classified from the HTTP status.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
