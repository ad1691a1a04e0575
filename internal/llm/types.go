package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Backend selects the credential flow and payload dialect.
type Backend string

const (
	// BackendOAuth is the primary chat messages API behind client-credentials auth.
	BackendOAuth Backend = "oauth"
	// BackendAPIKey is the OpenAI-style internal gateway using a static key.
	BackendAPIKey Backend = "apikey"
)

func (b Backend) Valid() bool {
	return b == BackendOAuth || b == BackendAPIKey
}

// Message is one wire-format chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is what callers hand to Client.Chat. Zero-valued overrides fall
// back to the client's configured defaults.
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature *float64
}

// Validate checks roles and temperature. An empty history is allowed and is
// posted as "messages": [].
func (r *ChatRequest) Validate() error {
	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}

	return nil
}

// chatPayload is the JSON body posted to the chat endpoint.
type chatPayload struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	TopK        *int      `json:"top_k,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// Client performs a single chat call and returns the decoded JSON body as-is;
// interpreting the response shape is left to the caller.
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (json.RawMessage, error)
}
