package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/benestar-app/benestar/internal/nats"
)

// Inserter persists quota events.
type Inserter interface {
	Insert(ctx context.Context, log *QuotaEventLog) error
}

// Consumer listens on the quota event NATS subject and persists entries to the database.
type Consumer struct {
	repo        Inserter
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new quota event Consumer.
func NewConsumer(repo Inserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "quota-event-persister", inats.SubjectQuotaEvent)
	if err != nil {
		return err
	}

	slog.Info("quota event consumer started", "consumer", "quota-event-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("quota event consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// ackNaker is the subset of jetstream.Msg the handler needs.
type ackNaker interface {
	Data() []byte
	Ack() error
	Nak() error
}

func (c *Consumer) handleEvent(ctx context.Context, msg ackNaker) {
	var event inats.QuotaEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("quota event consumer: unmarshaling event", "error", err)
		// Redelivery cannot fix a malformed payload.
		_ = msg.Ack()
		return
	}

	log := eventToLog(event)
	if err := c.repo.Insert(ctx, log); err != nil {
		slog.Error("quota event consumer: persisting event", "error", err, "user_id", event.UserID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("quota event consumer: persisted event",
		"user_id", event.UserID,
		"kind", event.Kind,
		"reason", event.Reason,
	)
}

func eventToLog(event inats.QuotaEvent) *QuotaEventLog {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return &QuotaEventLog{
		ID:              event.ID,
		UserID:          event.UserID,
		Kind:            event.Kind,
		Reason:          event.Reason,
		RemainingMinute: event.RemainingMinute,
		RemainingDay:    event.RemainingDay,
		CreatedAt:       event.Timestamp,
	}
}
