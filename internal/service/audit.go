package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// AuditWorkerConcurrency is the default number of audit writes processed in parallel.
const AuditWorkerConcurrency = 10

// AuditLoggerOptions groups dependencies for AuditLogger.
type AuditLoggerOptions struct {
	Repo     core.AuditRepository // Required: append-only audit store
	Queue    core.JobEnqueuer     // Required: broker for asynchronous writes
	Attempts int                  // Optional: delivery attempts per event (default 3)
	Logger   *slog.Logger         // Optional: structured logger
}

// AuditLogger records audit events. LogAsync hands events to the audit-events
// queue and Handle writes them; LogSync writes inline.
type AuditLogger struct {
	repo     core.AuditRepository
	queue    core.JobEnqueuer
	attempts int
	logger   *slog.Logger
}

// NewAuditLogger constructs an AuditLogger.
func NewAuditLogger(opts AuditLoggerOptions) (*AuditLogger, error) {
	if opts.Repo == nil {
		return nil, errors.New("AuditRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobEnqueuer is required")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = model.DefaultAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		repo:     opts.Repo,
		queue:    opts.Queue,
		attempts: attempts,
		logger:   logger.With("component", "audit_logger"),
	}, nil
}

// prepare assigns an id, fills request info from ctx and validates the event.
func prepare(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	} else if _, err := uuid.Parse(event.ID); err != nil {
		return apperrors.ValidationField("id", "audit event id must be a uuid")
	}
	if info, ok := core.RequestInfoFromContext(ctx); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = info.UserAgent
		}
		if event.RequestID == "" {
			event.RequestID = info.RequestID
		}
	}
	if err := event.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	return nil
}

// LogAsync enqueues the event on the audit-events queue and returns once the
// broker has accepted it. Broker failures are returned to the caller.
func (l *AuditLogger) LogAsync(ctx context.Context, event model.AuditEvent) error {
	if err := prepare(ctx, &event); err != nil {
		return err
	}
	_, err := l.queue.Enqueue(ctx, model.EnqueueRequest{
		Queue:   model.QueueAuditEvents,
		Kind:    model.JobKindWriteAuditEvent,
		Payload: event,
		Options: model.EnqueueOptions{Attempts: l.attempts},
	})
	if err != nil {
		return fmt.Errorf("enqueue audit event %s: %w", event.Action, err)
	}
	return nil
}

// LogSync writes the event inline and returns the stored row with its
// database timestamp.
func (l *AuditLogger) LogSync(ctx context.Context, event model.AuditEvent) (*model.AuditEvent, error) {
	if err := prepare(ctx, &event); err != nil {
		return nil, err
	}
	stored, err := l.repo.Insert(ctx, &event)
	if err != nil {
		return nil, fmt.Errorf("write audit event %s: %w", event.Action, err)
	}
	return stored, nil
}

// Handle is the audit-events worker. Errors are retried by the queue.
func (l *AuditLogger) Handle(ctx context.Context, job *model.Job) error {
	if job.Kind != model.JobKindWriteAuditEvent {
		return fmt.Errorf("unsupported job kind %q on %s", job.Kind, job.Queue)
	}
	var event model.AuditEvent
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		return fmt.Errorf("decode audit event: %w", err)
	}
	if _, err := l.repo.Insert(ctx, &event); err != nil {
		return fmt.Errorf("write audit event %s: %w", event.ID, err)
	}
	l.logger.DebugContext(ctx, "audit event written",
		"job_id", job.ID,
		"event_id", event.ID,
		"action", event.Action,
	)
	return nil
}

// Query returns events newest first.
func (l *AuditLogger) Query(ctx context.Context, q model.AuditQuery) (*model.AuditPage, error) {
	if err := q.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return l.repo.Query(ctx, q)
}

var _ core.AuditRecorder = (*AuditLogger)(nil)
