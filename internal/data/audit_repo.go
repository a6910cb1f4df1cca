package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// AuditRepo is the append-only audit store. The table additionally rejects
// UPDATE and DELETE with a trigger.
type AuditRepo struct {
	DB *sql.DB
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db}
}

const auditColumns = `
  id, actor_id, actor_kind, action, object_type, object_id, changes,
  ip_address, user_agent, request_id, "timestamp"`

func scanAuditEvent(s rowScanner) (*model.AuditEvent, error) {
	var (
		e                               model.AuditEvent
		actorID                         sql.NullString
		changes                         []byte
		ipAddress, userAgent, requestID sql.NullString
	)
	if err := s.Scan(
		&e.ID, &actorID, &e.ActorKind, &e.Action, &e.ObjectType, &e.ObjectID, &changes,
		&ipAddress, &userAgent, &requestID, &e.Timestamp,
	); err != nil {
		return nil, err
	}
	e.ActorID = nullableString(actorID)
	if len(changes) > 0 {
		e.Changes = append([]byte(nil), changes...)
	}
	e.IPAddress = ipAddress.String
	e.UserAgent = userAgent.String
	e.RequestID = requestID.String
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Insert appends the event. Redelivery of an id already stored is absorbed and
// the stored row is returned unchanged.
func (r *AuditRepo) Insert(ctx context.Context, event *model.AuditEvent) (*model.AuditEvent, error) {
	if event == nil {
		return nil, errors.New("audit event is required")
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		return nil, apperrors.ValidationField("id", "audit event id must be a uuid")
	}

	var changes any
	if len(event.Changes) > 0 {
		changes = string(event.Changes)
	}

	row := r.DB.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO audit_events (
				id, actor_id, actor_kind, action, object_type, object_id, changes,
				ip_address, user_agent, request_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
			RETURNING `+auditColumns+`
		)
		SELECT `+auditColumns+` FROM ins
		UNION ALL
		SELECT `+auditColumns+` FROM audit_events WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM ins)
	`,
		event.ID,
		event.ActorID,
		string(event.ActorKind),
		event.Action,
		event.ObjectType,
		event.ObjectID,
		changes,
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		nullIfEmpty(event.RequestID),
	)
	stored, err := scanAuditEvent(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert audit event: %w", err))
	}
	return stored, nil
}

// Query filters events newest first. The cursor is an event id.
func (r *AuditRepo) Query(ctx context.Context, q model.AuditQuery) (*model.AuditPage, error) {
	limit := q.Page.EffectiveLimit()

	var w whereBuilder
	w.addIf(q.ActorID != "", "actor_id = ?", q.ActorID)
	w.addIf(q.ObjectType != "", "object_type = ?", q.ObjectType)
	w.addIf(q.ObjectID != "", "object_id = ?", q.ObjectID)
	w.addIf(q.Action != "", "action ILIKE ?", "%"+escapeLike(q.Action)+"%")
	w.addIf(q.From != nil, `"timestamp" >= ?`, q.From)
	w.addIf(q.To != nil, `"timestamp" <= ?`, q.To)
	if q.Page.Cursor != "" {
		if _, err := uuid.Parse(q.Page.Cursor); err != nil {
			return nil, apperrors.ValidationField("cursor", "cursor is invalid")
		}
		w.add(`("timestamp", id) < (SELECT "timestamp", id FROM audit_events WHERE id = ?)`, q.Page.Cursor)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events ` + w.sql() +
		` ORDER BY "timestamp" DESC, id DESC LIMIT ` + w.next(limit+1)

	rows, err := r.DB.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("query audit events: %w", err))
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return model.NewPage(events, limit, func(e model.AuditEvent) string { return e.ID }), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ core.AuditRepository = (*AuditRepo)(nil)
