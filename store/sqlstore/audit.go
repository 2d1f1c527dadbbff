package sqlstore

import (
	"context"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/jmoiron/sqlx"
)

// AuditSink appends audit entries to the audit_events table.
type AuditSink struct {
	db *sqlx.DB
}

var _ internalaudit.Sink = (*AuditSink)(nil)

func NewAuditSink(db *sqlx.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Record(ctx context.Context, event internalaudit.Event) error {
	const q = `INSERT INTO audit_events
	(id, occurred_at, action, actor_id, target_id, target_type, severity, message, source_addr, path, success)
	VALUES (:id, :occurred_at, :action, :actor_id, :target_id, :target_type, :severity, :message, :source_addr, :path, :success)`
	_, err := s.db.NamedExecContext(ctx, q, event)
	return mapErr(err)
}

// Recent returns the newest entries for targetID, newest first.
func (s *AuditSink) Recent(ctx context.Context, targetID string, limit int) ([]internalaudit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, occurred_at, action, actor_id, target_id, target_type, severity, message, source_addr, path, success
	FROM audit_events WHERE target_id = $1 ORDER BY occurred_at DESC LIMIT $2`
	var out []internalaudit.Event
	if err := s.db.SelectContext(ctx, &out, q, targetID, limit); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
