package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/benestar-app/benestar/internal/quota"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishQuotaEvent publishes a quota denial.
func (p *Publisher) PublishQuotaEvent(ctx context.Context, event QuotaEvent) error {
	return p.publish(ctx, SubjectQuotaEvent, event)
}

// Notify implements quota.Notifier.
func (p *Publisher) Notify(ctx context.Context, e quota.Event) error {
	return p.PublishQuotaEvent(ctx, FromQuotaEvent(e))
}

// FromQuotaEvent converts a gate event to its wire form.
func FromQuotaEvent(e quota.Event) QuotaEvent {
	return QuotaEvent{
		ID:              uuid.New(),
		UserID:          e.UserID,
		Kind:            string(e.Kind),
		Reason:          e.Reason,
		RemainingMinute: e.RemainingMinute,
		RemainingDay:    e.RemainingDay,
		Timestamp:       e.Timestamp,
	}
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
