package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benestar-app/benestar/internal/ai"
	"github.com/benestar-app/benestar/internal/metrics"
	"github.com/benestar-app/benestar/internal/quota"
)

// QuotaChecker consumes one unit of a user's quota.
type QuotaChecker interface {
	CheckAndConsume(ctx context.Context, userID string, kind quota.Kind, limits *quota.Limits) (quota.Decision, error)
}

// Service runs the quota-gated assistant features.
type Service struct {
	gate      QuotaChecker
	completer ai.Completer
}

// NewService creates a new assistant Service.
func NewService(gate QuotaChecker, completer ai.Completer) *Service {
	return &Service{gate: gate, completer: completer}
}

// Chat answers the next message of a free-form conversation.
func (s *Service) Chat(ctx context.Context, userID string, req ChatRequest) (string, error) {
	if err := s.consume(ctx, userID, quota.KindChat); err != nil {
		return "", err
	}

	msgs := append(ai.CleanHistory(req.History), ai.Message{Role: ai.RoleUser, Text: req.Message})
	out, err := s.complete(ctx, quota.KindChat, ai.Request{
		SystemInstruction: req.SystemInstruction,
		Messages:          msgs,
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return fallbackChatReply, nil
	}
	return out, nil
}

// RoleplayStep produces the next NPC line and three reply options.
func (s *Service) RoleplayStep(ctx context.Context, userID string, req RoleplayRequest) (*RoleplayStep, error) {
	if err := s.consume(ctx, userID, quota.KindRoleplay); err != nil {
		return nil, err
	}

	out, err := s.complete(ctx, quota.KindRoleplay, ai.Request{
		Messages:       []ai.Message{{Role: ai.RoleUser, Text: roleplayPrompt(req)}},
		ResponseSchema: roleplaySchema,
	})
	if err != nil {
		return nil, err
	}
	return parseRoleplay(out), nil
}

// AnalyzeJournal returns strengths, suggestions and a summary for an entry.
func (s *Service) AnalyzeJournal(ctx context.Context, userID string, req JournalRequest) (*JournalFeedback, error) {
	if err := s.consume(ctx, userID, quota.KindJournal); err != nil {
		return nil, err
	}

	out, err := s.complete(ctx, quota.KindJournal, ai.Request{
		Messages:       []ai.Message{{Role: ai.RoleUser, Text: journalPrompt(req.Text)}},
		ResponseSchema: journalSchema,
	})
	if err != nil {
		return nil, err
	}
	return parseJournal(out), nil
}

// consume returns a *QuotaExceededError on denial and passes gate errors
// through unchanged.
func (s *Service) consume(ctx context.Context, userID string, kind quota.Kind) error {
	dec, err := s.gate.CheckAndConsume(ctx, userID, kind, nil)
	if err != nil {
		return fmt.Errorf("checking %s quota: %w", kind, err)
	}
	if !dec.Allowed {
		return &QuotaExceededError{Kind: kind, Decision: dec}
	}
	return nil
}

func (s *Service) complete(ctx context.Context, kind quota.Kind, req ai.Request) (string, error) {
	start := time.Now()
	out, err := s.completer.Complete(ctx, req)
	metrics.CompletionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues(string(kind), "error").Inc()
		slog.Error("assistant: completion failed", "error", err, "feature", kind)
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	metrics.CompletionsTotal.WithLabelValues(string(kind), "ok").Inc()
	return strings.TrimSpace(out), nil
}

func roleplayPrompt(req RoleplayRequest) string {
	history := req.Context
	if choice := strings.TrimSpace(req.Choice); choice != "" {
		history = append(append([]ai.Message(nil), history...), ai.Message{Role: ai.RoleUser, Text: "User chooses: " + choice})
	}

	var lines []string
	for _, m := range ai.CleanHistory(history) {
		speaker := "NPC"
		if m.Role == ai.RoleUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+m.Text)
	}
	transcript := strings.Join(lines, "\n")
	if transcript == "" {
		transcript = "(no messages yet)"
	}

	return fmt.Sprintf(`We are doing a short roleplay about: %q.
Context so far:
%s

If there is a "User chooses: X" line, continue coherently from it.

Return JSON with:
{
  "npcSay": "natural speech (1-3 sentences)",
  "options": ["short option A", "short option B", "short option C"]
}`, req.Topic, transcript)
}

func journalPrompt(text string) string {
	return fmt.Sprintf(`Analyze this piece of writing by a teenager and return JSON with:
- "strengths": 3 positive points (short sentences)
- "suggestions": 3 practical, kind and concrete ideas
- "summary": 1-2 validating, empathetic sentences

Text:
"""%s"""`, text)
}
