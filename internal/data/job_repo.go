package data

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the Postgres-backed broker. Reservation uses FOR UPDATE SKIP
// LOCKED; producers wake idle workers with pg_notify on "job_added_<queue>".
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

func notifyChannel(queue string) string {
	return "job_added_" + queue
}

const jobColumns = `
  id,
  queue,
  kind,
  status,
  priority,
  payload,
  attempts_made,
  max_attempts,
  backoff_kind,
  backoff_delay_ms,
  scheduled_at,
  started_at,
  completed_at,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload                                []byte
	backoffDelayMS                         int64
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func scanJob(s rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var d jobRowData
	if err := s.Scan(
		&job.ID,
		&job.Queue,
		&job.Kind,
		&job.Status,
		&job.Priority,
		&d.payload,
		&job.AttemptsMade,
		&job.MaxAttempts,
		&job.Backoff.Kind,
		&d.backoffDelayMS,
		&job.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&d.lastError,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = cloneJSON(d.payload)
	job.Backoff.Delay = time.Duration(d.backoffDelayMS) * time.Millisecond
	job.LastError = nullableString(d.lastError)
	job.StartedAt = nullableTime(d.startedAt)
	job.CompletedAt = nullableTime(d.completedAt)
	job.LeaseExpiresAt = nullableTime(d.leaseExpiresAt)
	job.ScheduledAt = job.ScheduledAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

// collectJob reads exactly one job from rows, returning pgx.ErrNoRows when empty.
func collectJob(rows pgx.Rows) (*model.Job, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	return job, rows.Err()
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
