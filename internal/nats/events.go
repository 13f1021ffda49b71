package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "BENESTAR_EVENTS"
)

// Subject constants.
const (
	SubjectQuotaEvent = "benestar.events.quota"
)

// QuotaEvent is published whenever the quota gate denies a request.
type QuotaEvent struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Kind            string    `json:"kind"`
	Reason          string    `json:"reason"`
	RemainingMinute int       `json:"remaining_minute"`
	RemainingDay    int       `json:"remaining_day"`
	Timestamp       time.Time `json:"timestamp"`
}
