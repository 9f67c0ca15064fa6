package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit_logs table.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at, actor_user_id, action, entity_type, entity_id,
		       COALESCE(correlation_id, ''), before, after
		FROM audit_logs
		WHERE tenant_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		  AND ($4 = 0 OR actor_user_id = $4)
		  AND ($5 = '' OR entity_type = $5)
		  AND ($6 = '' OR entity_id = $6)
		  AND ($7 = '' OR action = $7)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $8 LIMIT $9`,
		filters.TenantID,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.ActorUserID, filters.EntityType, filters.EntityID, filters.Action,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("audit timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorUserID, &row.Action, &row.EntityType,
			&row.EntityID, &row.CorrelationID, &row.Before, &row.After); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
