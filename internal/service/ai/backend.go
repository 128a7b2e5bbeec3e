package ai

import (
	"context"

	"github.com/pkg/errors"
)

// ErrMissingAPIKey is returned when a client is built without a credential.
var ErrMissingAPIKey = errors.New("generative backend api key is not configured")

// Reply is the outcome of one turn. An empty Text means the backend
// answered without a text field.
type Reply struct {
	Text string
}

// Conversation is a stateful multi-turn exchange whose history lives with
// the backend handle.
type Conversation interface {
	Send(ctx context.Context, text string) (Reply, error)
}

// Client exposes the two call shapes the chat widget needs.
type Client interface {
	// StartConversation creates a session bound to a model and system instruction.
	StartConversation(ctx context.Context, model, systemInstruction string) (Conversation, error)
	// Generate issues one stateless single-turn request.
	Generate(ctx context.Context, model, text string) (Reply, error)
}

// ClientFactory builds a fresh client from process configuration.
type ClientFactory func(ctx context.Context) (Client, error)
