package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes treated as write conflicts.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// PostgresStore keeps quota records in the quota_records table and runs each
// transaction at SERIALIZABLE isolation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed counter store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RunTransaction implements Store.
func (s *PostgresStore) RunTransaction(ctx context.Context, key Key, fn TxFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning quota transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ptx := &pgTx{tx: tx, key: key}
	if err := fn(ctx, ptx); err != nil {
		return classifyPgError(err)
	}

	if ptx.pending != nil {
		rec := ptx.pending
		_, err := tx.Exec(ctx,
			`INSERT INTO quota_records (user_id, kind, minute_window_start, minute_count, day_window_start, day_count, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 ON CONFLICT (user_id, kind) DO UPDATE
			 SET minute_window_start = EXCLUDED.minute_window_start,
			     minute_count = EXCLUDED.minute_count,
			     day_window_start = EXCLUDED.day_window_start,
			     day_count = EXCLUDED.day_count,
			     updated_at = NOW()`,
			key.UserID, string(key.Kind), rec.MinuteWindowStart, rec.MinuteCount, rec.DayWindowStart, rec.DayCount)
		if err != nil {
			return classifyPgError(fmt.Errorf("upserting quota record: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(fmt.Errorf("committing quota transaction: %w", err))
	}
	return nil
}

type pgTx struct {
	tx      pgx.Tx
	key     Key
	pending *Record
}

func (t *pgTx) Get(ctx context.Context) (Record, error) {
	var rec Record
	err := t.tx.QueryRow(ctx,
		`SELECT minute_window_start, minute_count, day_window_start, day_count, updated_at
		 FROM quota_records WHERE user_id = $1 AND kind = $2`,
		t.key.UserID, string(t.key.Kind),
	).Scan(&rec.MinuteWindowStart, &rec.MinuteCount, &rec.DayWindowStart, &rec.DayCount, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("fetching quota record: %w", err)
	}
	return rec, nil
}

func (t *pgTx) Set(rec Record) {
	t.pending = &rec
}

func (t *pgTx) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := t.tx.QueryRow(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("reading database time: %w", err)
	}
	return now, nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return fmt.Errorf("%w: sqlstate %s", ErrConflict, pgErr.Code)
		}
	}
	return err
}
