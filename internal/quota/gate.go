package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/benestar-app/benestar/internal/metrics"
)

const (
	MinuteWindow = time.Minute
	DayWindow    = 24 * time.Hour

	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 10 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// Denial reasons, shown to end users.
const (
	ReasonMinuteExceeded = "per-minute limit exceeded"
	ReasonDayExceeded    = "per-day limit exceeded"
)

// GateConfig configures a Gate. Zero values fall back to defaults.
type GateConfig struct {
	// Limits overrides entries of DefaultLimits.
	Limits map[Kind]Limits
	// MaxAttempts bounds how many times a conflicting transaction is run.
	MaxAttempts int
	// BaseBackoff is the first wait between conflicting attempts.
	BaseBackoff time.Duration
}

// Gate decides whether a user may spend one unit of a feature's budget and
// records the spend atomically in the Store.
type Gate struct {
	store       Store
	limits      map[Kind]Limits
	maxAttempts int
	baseBackoff time.Duration
	notifier    Notifier
	events      chan Event
}

// Option customizes a Gate.
type Option func(*Gate)

// WithNotifier queues every denial for n. Queued events are delivered by
// RunNotifier; the decision never waits on n.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) {
		g.notifier = n
		g.events = make(chan Event, notifyQueueSize)
	}
}

// NewGate creates a Gate over store. The limits table is fixed after this call.
func NewGate(store Store, cfg GateConfig, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("quota: store is required")
	}

	limits := DefaultLimits()
	for k, l := range cfg.Limits {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
		}
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("limits for %s: %w", k, err)
		}
		limits[k] = l
	}

	g := &Gate{
		store:       store,
		limits:      limits,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = DefaultMaxAttempts
	}
	if g.baseBackoff <= 0 {
		g.baseBackoff = DefaultBaseBackoff
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Limits returns the configured limits for kind.
func (g *Gate) Limits(kind Kind) (Limits, bool) {
	l, ok := g.limits[kind]
	return l, ok
}

// CheckAndConsume checks both windows for (userID, kind) and, if neither is
// exhausted, consumes one unit from each. A nil override uses the configured
// limits for kind.
//
// A denial is a normal Decision, not an error. Errors are either invalid
// input (ErrInvalidInput) or a *TransientError; neither grants permission.
func (g *Gate) CheckAndConsume(ctx context.Context, userID string, kind Kind, override *Limits) (Decision, error) {
	key, lim, err := g.resolve(userID, kind, override)
	if err != nil {
		return Decision{}, err
	}

	var (
		dec Decision
		now time.Time
	)
	err = g.transact(ctx, key, func(ctx context.Context, tx Tx) error {
		rec, err := tx.Get(ctx)
		if err != nil {
			return err
		}
		now, err = tx.Now(ctx)
		if err != nil {
			return err
		}

		nowMs := now.UnixMilli()
		rec = normalize(rec, nowMs)
		dec = check(rec, lim, nowMs)
		if !dec.Allowed {
			return nil
		}

		rec.MinuteCount++
		rec.DayCount++
		rec.UpdatedAt = now
		tx.Set(rec)

		dec.RemainingMinute = remaining(lim.PerMinute, rec.MinuteCount)
		dec.RemainingDay = remaining(lim.PerDay, rec.DayCount)
		return nil
	})
	if err != nil {
		metrics.QuotaTransientFailuresTotal.WithLabelValues(string(kind)).Inc()
		slog.Warn("quota: check failed", "error", err, "user_id", userID, "kind", kind)
		return Decision{}, err
	}

	if dec.Allowed {
		metrics.QuotaDecisionsTotal.WithLabelValues(string(kind), "allowed").Inc()
	} else {
		metrics.QuotaDecisionsTotal.WithLabelValues(string(kind), "denied").Inc()
		slog.Debug("quota: denied", "user_id", userID, "kind", kind, "reason", dec.Reason)
		g.notify(Event{
			UserID:          userID,
			Kind:            kind,
			Reason:          dec.Reason,
			RemainingMinute: dec.RemainingMinute,
			RemainingDay:    dec.RemainingDay,
			Timestamp:       now.UTC(),
		})
	}
	return dec, nil
}

// Peek reports the budget left for (userID, kind) without consuming or
// writing anything. Allowed tells whether CheckAndConsume would succeed now.
func (g *Gate) Peek(ctx context.Context, userID string, kind Kind, override *Limits) (Decision, error) {
	key, lim, err := g.resolve(userID, kind, override)
	if err != nil {
		return Decision{}, err
	}

	var dec Decision
	err = g.transact(ctx, key, func(ctx context.Context, tx Tx) error {
		rec, err := tx.Get(ctx)
		if err != nil {
			return err
		}
		now, err := tx.Now(ctx)
		if err != nil {
			return err
		}
		nowMs := now.UnixMilli()
		dec = check(normalize(rec, nowMs), lim, nowMs)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return dec, nil
}

func (g *Gate) resolve(userID string, kind Kind, override *Limits) (Key, Limits, error) {
	if strings.TrimSpace(userID) == "" {
		return Key{}, Limits{}, ErrEmptyUserID
	}
	lim, ok := g.limits[kind]
	if !ok {
		return Key{}, Limits{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if override != nil {
		if err := override.validate(); err != nil {
			return Key{}, Limits{}, err
		}
		lim = *override
	}
	return Key{UserID: userID, Kind: kind}, lim, nil
}

// transact runs fn in a store transaction, retrying write conflicts with
// exponential backoff up to maxAttempts. Any failure comes back as a
// *TransientError.
func (g *Gate) transact(ctx context.Context, key Key, fn TxFunc) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     g.baseBackoff,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         maxBackoff,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := g.store.RunTransaction(ctx, key, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrConflict):
			metrics.QuotaConflictsTotal.WithLabelValues(string(key.Kind)).Inc()
			slog.Debug("quota: write conflict, retrying", "key", key.String(), "attempt", attempts)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)
	if err != nil {
		return &TransientError{Attempts: attempts, Err: err}
	}
	return nil
}

// normalize resets any window that has run its full duration.
func normalize(rec Record, nowMs int64) Record {
	if nowMs-rec.MinuteWindowStart >= MinuteWindow.Milliseconds() {
		rec.MinuteWindowStart = nowMs
		rec.MinuteCount = 0
	}
	if nowMs-rec.DayWindowStart >= DayWindow.Milliseconds() {
		rec.DayWindowStart = nowMs
		rec.DayCount = 0
	}
	return rec
}

// check evaluates a normalized record without consuming. The minute window
// is checked before the day window.
func check(rec Record, lim Limits, nowMs int64) Decision {
	if rec.MinuteCount >= lim.PerMinute {
		return Decision{
			Reason:       ReasonMinuteExceeded,
			RemainingDay: remaining(lim.PerDay, rec.DayCount),
			RetryAfter:   untilReset(rec.MinuteWindowStart, MinuteWindow, nowMs),
		}
	}
	if rec.DayCount >= lim.PerDay {
		return Decision{
			Reason:          ReasonDayExceeded,
			RemainingMinute: remaining(lim.PerMinute, rec.MinuteCount),
			RetryAfter:      untilReset(rec.DayWindowStart, DayWindow, nowMs),
		}
	}
	return Decision{
		Allowed:         true,
		RemainingMinute: remaining(lim.PerMinute, rec.MinuteCount),
		RemainingDay:    remaining(lim.PerDay, rec.DayCount),
	}
}

func remaining(limit, used int) int {
	left := limit - used
	if left < 0 {
		return 0
	}
	if left > limit {
		return limit
	}
	return left
}

func untilReset(windowStart int64, window time.Duration, nowMs int64) time.Duration {
	d := time.Duration(windowStart+window.Milliseconds()-nowMs) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}
