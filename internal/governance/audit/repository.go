package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles quota_events PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single quota event. Redelivered events with the same
// ID are ignored.
func (r *Repository) Insert(ctx context.Context, log *QuotaEventLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_events (id, user_id, kind, reason, remaining_minute, remaining_day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		log.ID, log.UserID, log.Kind, log.Reason, log.RemainingMinute, log.RemainingDay, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting quota event: %w", err)
	}
	return nil
}

// ListByUser returns paginated quota events for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, params ListParams) ([]QuotaEventLog, int64, error) {
	params = normalizeParams(params)
	where, args := buildFilter(userID, params)
	argIdx := len(args) + 1

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quota_events WHERE %s", where)
	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting quota events: %w", err)
	}

	// Data query
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, user_id, kind, reason, remaining_minute, remaining_day, created_at
		 FROM quota_events WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying quota events: %w", err)
	}
	defer rows.Close()

	logs := []QuotaEventLog{}
	for rows.Next() {
		var l QuotaEventLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Kind, &l.Reason,
			&l.RemainingMinute, &l.RemainingDay, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning quota event: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating quota events: %w", err)
	}

	return logs, totalCount, nil
}

func normalizeParams(params ListParams) ListParams {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	return params
}

func buildFilter(userID string, params ListParams) (string, []any) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, userID)
	argIdx++

	if params.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, params.Kind)
		argIdx++
	}

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}

	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
	}

	return strings.Join(conditions, " AND "), args
}
