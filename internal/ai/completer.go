// Package ai wraps the generative-language API behind a small interface.
package ai

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one conversation turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text" validate:"max=8000"`
}

// Request is a single completion call.
type Request struct {
	SystemInstruction string
	Messages          []Message
	// ResponseSchema, when set, asks the model for JSON matching it.
	ResponseSchema *genai.Schema
}

// ErrEmptyResponse is returned when the model produced no candidates.
var ErrEmptyResponse = errors.New("empty response from model")

// Completer produces text for a Request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CleanHistory keeps only user and model turns and drops any leading turns
// until the first user turn; the API rejects conversations that start with
// the model.
func CleanHistory(history []Message) []Message {
	cleaned := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleUser || m.Role == RoleModel {
			cleaned = append(cleaned, m)
		}
	}
	for len(cleaned) > 0 && cleaned[0].Role != RoleUser {
		cleaned = cleaned[1:]
	}
	return cleaned
}
