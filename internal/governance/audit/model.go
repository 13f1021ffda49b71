package audit

import (
	"time"

	"github.com/google/uuid"
)

// QuotaEventLog matches the quota_events table schema.
type QuotaEventLog struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Kind            string    `json:"kind"`
	Reason          string    `json:"reason"`
	RemainingMinute int       `json:"remaining_minute"`
	RemainingDay    int       `json:"remaining_day"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for quota event queries.
type ListParams struct {
	Kind     string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
