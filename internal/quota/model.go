package quota

import (
	"time"
)

// Record is the stored counter state for one (user, kind) pair.
// Window starts are milliseconds since the Unix epoch.
type Record struct {
	MinuteWindowStart int64     `json:"minute_window_start"`
	MinuteCount       int       `json:"minute_count"`
	DayWindowStart    int64     `json:"day_window_start"`
	DayCount          int       `json:"day_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Key identifies a Record.
type Key struct {
	UserID string
	Kind   Kind
}

func (k Key) String() string {
	return k.UserID + "/" + string(k.Kind)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed         bool          `json:"allowed"`
	Reason          string        `json:"reason,omitempty"`
	RemainingMinute int           `json:"remaining_minute"`
	RemainingDay    int           `json:"remaining_day"`
	RetryAfter      time.Duration `json:"-"`
}

// Event describes a denied decision, handed to a Notifier.
type Event struct {
	UserID          string    `json:"user_id"`
	Kind            Kind      `json:"kind"`
	Reason          string    `json:"reason"`
	RemainingMinute int       `json:"remaining_minute"`
	RemainingDay    int       `json:"remaining_day"`
	Timestamp       time.Time `json:"timestamp"`
}
