package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"doc-intake-service/internal/entity"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

type AuditFilter struct {
	ActionType string
	Status     entity.AuditStatus
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// Insert appends one entry. It commits on its own, outside any caller transaction.
func (r *AuditRepository) Insert(ctx context.Context, e *entity.AuditLog) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	const q = `
INSERT INTO audit_logs (id, timestamp, user_id, user_ip, action_type, resource_type, resource_id,
                        details, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at;
`
	return r.pool.QueryRow(ctx, q, e.ID, e.Timestamp, e.UserID, e.UserIP, e.ActionType, e.ResourceType,
		e.ResourceID, []byte(e.Details), string(e.Status), e.ErrorMessage).Scan(&e.CreatedAt)
}

// DeleteOlderThan removes every entry with timestamp before cutoff in one statement.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE timestamp < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]entity.AuditLog, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("timestamp >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp < $%d", f.Until)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	q := fmt.Sprintf(`
SELECT id, timestamp, user_id, user_ip, action_type, resource_type, resource_id,
       details, status, error_message, created_at
FROM audit_logs%s
ORDER BY timestamp DESC
LIMIT $%d OFFSET $%d;`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.AuditLog
	for rows.Next() {
		var (
			e          entity.AuditLog
			details    []byte
			statusText string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.UserIP, &e.ActionType, &e.ResourceType,
			&e.ResourceID, &details, &statusText, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = entity.AuditStatus(statusText)
		if details != nil {
			e.Details = details
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
