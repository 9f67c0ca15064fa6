package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditEvent represents a record stored in audit_logs. Before and After hold
// entity snapshots; the storage layer owns formatting and redaction.
type AuditEvent struct {
	TenantID      int64
	ActorUserID   int64
	EntityType    string
	EntityID      string
	Action        string
	Before        any
	After         any
	CorrelationID string
	At            time.Time
}

// DBTX is the minimal executor satisfied by both pgxpool.Pool and pgx.Tx so
// audit writes can share the enclosing transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriteAuditEvent persists the event using the given executor. Passing the
// transaction of the mutation keeps audit and state change atomic.
func WriteAuditEvent(ctx context.Context, db DBTX, ev AuditEvent) error {
	if db == nil {
		return errors.New("audit: executor required")
	}
	if ev.Action == "" || ev.EntityType == "" || ev.EntityID == "" {
		return errors.New("audit: action/entity_type/entity_id required")
	}
	beforeJSON, err := json.Marshal(ev.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(ev.After)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO audit_logs (tenant_id, actor_user_id, entity_type, entity_id, action, before, after, correlation_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), COALESCE(NULLIF($9, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		ev.TenantID, ev.ActorUserID, ev.EntityType, ev.EntityID, ev.Action, beforeJSON, afterJSON, ev.CorrelationID, ev.At)
	return err
}
