package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quota:"

const (
	fieldMinuteWindowStart = "minute_window_start"
	fieldMinuteCount       = "minute_count"
	fieldDayWindowStart    = "day_window_start"
	fieldDayCount          = "day_count"
	fieldUpdatedAt         = "updated_at"
)

// RedisStore keeps one hash per (user, kind) and serializes writers with
// WATCH/MULTI/EXEC. Time comes from the Redis server unless a clock is set.
type RedisStore struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithClock replaces the Redis TIME command as the time source.
func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.clock = now }
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.UserID + ":" + string(key.Kind)
}

// RunTransaction implements Store.
func (s *RedisStore) RunTransaction(ctx context.Context, key Key, fn TxFunc) error {
	k := redisKey(key)

	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{tx: rtx, key: k, clock: s.clock}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if tx.pending == nil {
			return nil
		}

		rec := *tx.pending
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, map[string]any{
				fieldMinuteWindowStart: rec.MinuteWindowStart,
				fieldMinuteCount:       rec.MinuteCount,
				fieldDayWindowStart:    rec.DayWindowStart,
				fieldDayCount:          rec.DayCount,
				fieldUpdatedAt:         rec.UpdatedAt.UnixMilli(),
			})
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("redis transaction on %s: %w", k, err)
	}
	return nil
}

type redisTx struct {
	tx      *redis.Tx
	key     string
	clock   func() time.Time
	pending *Record
}

func (t *redisTx) Get(ctx context.Context) (Record, error) {
	vals, err := t.tx.HGetAll(ctx, t.key).Result()
	if err != nil {
		return Record{}, fmt.Errorf("reading %s: %w", t.key, err)
	}
	return parseRecord(vals)
}

func (t *redisTx) Set(rec Record) {
	t.pending = &rec
}

func (t *redisTx) Now(ctx context.Context) (time.Time, error) {
	if t.clock != nil {
		return t.clock(), nil
	}
	now, err := t.tx.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading redis server time: %w", err)
	}
	return now, nil
}

// parseRecord decodes a quota hash. Missing fields are zero.
func parseRecord(vals map[string]string) (Record, error) {
	var rec Record
	ints := []struct {
		field string
		dst   *int64
	}{
		{fieldMinuteWindowStart, &rec.MinuteWindowStart},
		{fieldDayWindowStart, &rec.DayWindowStart},
	}
	for _, f := range ints {
		if v, ok := vals[f.field]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("parsing %s: %w", f.field, err)
			}
			*f.dst = n
		}
	}

	counts := []struct {
		field string
		dst   *int
	}{
		{fieldMinuteCount, &rec.MinuteCount},
		{fieldDayCount, &rec.DayCount},
	}
	for _, f := range counts {
		if v, ok := vals[f.field]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Record{}, fmt.Errorf("parsing %s: %w", f.field, err)
			}
			*f.dst = n
		}
	}

	if v, ok := vals[fieldUpdatedAt]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("parsing %s: %w", fieldUpdatedAt, err)
		}
		rec.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}
