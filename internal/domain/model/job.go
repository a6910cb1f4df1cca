// Package model defines the core data types shared by the docpipe job queue,
// document pipeline and audit logger.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus is the persisted lifecycle status of a job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting (or delayed) for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently leased by a worker.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job exhausted its attempts.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// JobState is the observable state of a job as reported by GetJobCounts.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
)

// BackoffKind selects how the retry delay grows between attempts.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type BackoffKind string

const (
	// BackoffFixed waits the same delay before every retry.
	BackoffFixed BackoffKind = "fixed"
	// BackoffExponential doubles the delay after every failed attempt.
	BackoffExponential BackoffKind = "exponential"
)

// Valid returns true if the BackoffKind is known.
func (k BackoffKind) Valid() bool {
	return k == BackoffFixed || k == BackoffExponential
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (k *BackoffKind) UnmarshalText(text []byte) error {
	v := BackoffKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid BackoffKind: %q", v)
	}
	*k = v
	return nil
}

// Backoff is the retry policy stored with each job.
type Backoff struct {
	Kind  BackoffKind   `json:"kind"`
	Delay time.Duration `json:"delay"`
}

const (
	// DefaultAttempts is the number of attempts a job gets when the producer sets none.
	DefaultAttempts = 3
	// DefaultBackoffDelay is the base retry delay when the producer sets none.
	DefaultBackoffDelay = 1000 * time.Millisecond
	// DefaultConcurrency is the worker concurrency when the caller sets none.
	DefaultConcurrency = 5
	// MaxJobPriority is the highest accepted job priority.
	MaxJobPriority = 100
)

// DefaultBackoff returns the exponential 1s policy used when none is given.
func DefaultBackoff() Backoff {
	return Backoff{Kind: BackoffExponential, Delay: DefaultBackoffDelay}
}

// Queue names.
const (
	QueueDocumentScan = "document-scan"
	QueueAuditEvents  = "audit-events"
)

// Job kinds.
const (
	JobKindScanDocument    = "scan-document"
	JobKindWriteAuditEvent = "write-audit-event"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job is a unit of work persisted in the broker.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Queue          string          `json:"queue"                      db:"queue"`
	Kind           string          `json:"kind"                       db:"kind"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	AttemptsMade   int             `json:"attempts_made"              db:"attempts_made"`
	MaxAttempts    int             `json:"max_attempts"               db:"max_attempts"`
	Backoff        Backoff         `json:"backoff"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// State derives the observable state of the job at now.
func (j *Job) State(now time.Time) JobState {
	switch j.Status {
	case JobStatusRunning:
		return JobStateActive
	case JobStatusCompleted:
		return JobStateCompleted
	case JobStatusFailed:
		return JobStateFailed
	default:
		if j.ScheduledAt.After(now) {
			return JobStateDelayed
		}
		return JobStateWaiting
	}
}

// AttemptsLeft reports whether another attempt may follow the current one.
func (j *Job) AttemptsLeft() bool {
	return j.AttemptsMade < j.MaxAttempts
}

// EnqueueOptions are the producer-facing knobs on Enqueue.
type EnqueueOptions struct {
	// Delay postpones activation; the job is delayed until it elapses.
	Delay time.Duration `json:"delay,omitempty"`
	// Attempts is the total number of tries; zero means DefaultAttempts.
	Attempts int `json:"attempts,omitempty"`
	// Backoff overrides the default exponential 1s policy.
	Backoff *Backoff `json:"backoff,omitempty"`
	// Priority orders waiting jobs; higher is served first.
	Priority int `json:"priority,omitempty"`
}

// EnqueueRequest is a producer request to add a job to a queue.
type EnqueueRequest struct {
	Queue   string
	Kind    string
	Payload any
	Options EnqueueOptions
}

// CreateJobRequest is the fully resolved job row handed to the repository.
type CreateJobRequest struct {
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority,omitempty"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     Backoff         `json:"backoff"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Queue) == "" {
		return errors.New("queue is required")
	}
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > MaxJobPriority {
		return fmt.Errorf("priority must be between 0 and %d", MaxJobPriority)
	}
	if r.MaxAttempts < 1 {
		return errors.New("max attempts must be >= 1")
	}
	if !r.Backoff.Kind.Valid() {
		return errors.New("invalid backoff kind")
	}
	if r.Backoff.Delay < 0 {
		return errors.New("backoff delay must be >= 0")
	}
	return nil
}

// JobCounts is the per-state job tally of one queue.
type JobCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// WorkerOptions configures a queue worker.
type WorkerOptions struct {
	// Concurrency is the number of jobs processed in parallel; zero means DefaultConcurrency.
	Concurrency int
	// Lease is how long a reserved job stays owned without a heartbeat; zero picks the runtime default.
	Lease time.Duration
}

// ScanDocumentPayload is the payload of a scan-document job.
type ScanDocumentPayload struct {
	DocumentID string `json:"documentId"`
	StorageKey string `json:"storageKey"`
	Bucket     string `json:"bucket"`
}
