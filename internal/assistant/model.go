package assistant

import (
	"errors"
	"fmt"

	"github.com/benestar-app/benestar/internal/ai"
	"github.com/benestar-app/benestar/internal/quota"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	History           []ai.Message `json:"history" validate:"max=100,dive"`
	Message           string       `json:"message" validate:"required,max=4000"`
	SystemInstruction string       `json:"system_instruction" validate:"max=4000"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

// RoleplayRequest is the body of POST /roleplay/step.
type RoleplayRequest struct {
	Topic   string       `json:"topic" validate:"required,max=200"`
	Context []ai.Message `json:"context" validate:"max=100,dive"`
	Choice  string       `json:"choice" validate:"max=500"`
}

type RoleplayOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type RoleplayStep struct {
	NPCSay  string           `json:"npcSay"`
	Options []RoleplayOption `json:"options"`
}

// JournalRequest is the body of POST /journal/analyze.
type JournalRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

type JournalFeedback struct {
	Strengths   []string `json:"strengths"`
	Suggestions []string `json:"suggestions"`
	Summary     string   `json:"summary"`
}

// QuotaExceededError reports a denied quota check.
type QuotaExceededError struct {
	Kind     quota.Kind
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %s", e.Kind, e.Decision.Reason)
}

// ErrCompletion wraps failures of the generative-language API.
var ErrCompletion = errors.New("completion failed")
