package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
)

// AuditEventsRepository reads and writes the ClickHouse audit trail fed by the
// Kafka audit worker.
type AuditEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.AuditEvent) error
	List(ctx context.Context, userID string, kind model.AuditEventKind, limit, offset int) ([]model.AuditEvent, error)
}

type auditEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewAuditEventsRepository(ch *sqlx.DB) AuditEventsRepository {
	return &auditEventsRepository{ch: ch}
}

func (r *auditEventsRepository) InsertBatch(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(events)*6)

	sb.WriteString(`INSERT INTO reigw.audit_events (id, kind, user_id, subject, detail, created_at) VALUES `)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, e.ID, e.Kind.String(), e.UserID, e.Subject, e.Detail, e.CreatedAt)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *auditEventsRepository) List(ctx context.Context, userID string, kind model.AuditEventKind, limit, offset int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, kind, user_id, subject, detail, created_at
		FROM reigw.audit_events
		WHERE 1 = 1
	`
	args := []any{}

	if userID != "" {
		q += " AND user_id = ?"
		args = append(args, userID)
	}
	if kind != "" {
		q += " AND kind = ?"
		args = append(args, kind.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.AuditEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
