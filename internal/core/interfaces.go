// Package core declares the ports between the docpipe services and their
// collaborators, plus small cross-cutting services built only on those ports.
package core

import (
	"context"
	"io"
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// JobRepository defines the broker operations backing the job queue.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ReserveNext leases the next due job of queue and counts the attempt.
	ReserveNext(ctx context.Context, queue string, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, queue string) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	// Fail records errMsg and either reschedules the job per its backoff or marks it failed.
	Fail(ctx context.Context, id, errMsg string) (*model.Job, error)
	Counts(ctx context.Context, queue string) (*model.JobCounts, error)
	ListFailed(ctx context.Context, queue string, limit int) ([]*model.Job, error)
	RetryFailed(ctx context.Context, queue string) (int64, error)
	Ping(ctx context.Context) error
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the job housekeeping operations.
type ReaperRepository interface {
	// DeleteOldJobs deletes up to BatchSize jobs with Status older than MaxAge.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
	// RequeueExpiredLeases returns running jobs with an expired lease to pending,
	// or fails them when no attempts are left.
	RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error)
}

// CompleteScanParams groups parameters for DocumentRepository.CompleteScan.
type CompleteScanParams struct {
	DocumentID string
	Status     model.ScanStatus
	Result     []byte
}

// DocumentRepository defines the document metadata store.
type DocumentRepository interface {
	Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error)
	// GetByID returns NotFound for unknown and soft-deleted documents.
	GetByID(ctx context.Context, id string) (*model.Document, error)
	// GetByStorageKey returns the live document recorded for key.
	GetByStorageKey(ctx context.Context, key string) (*model.Document, error)
	// CompleteScan moves a pending document to a terminal status. It returns
	// false without error when the document already left pending.
	CompleteScan(ctx context.Context, params CompleteScanParams) (bool, error)
	ListByOwner(ctx context.Context, opts model.DocumentListOptions) (*model.DocumentPage, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// AuditRepository is the append-only audit store. It has no update or delete.
type AuditRepository interface {
	// Insert stores the event; a duplicate id is ignored and the stored row returned.
	Insert(ctx context.Context, event *model.AuditEvent) (*model.AuditEvent, error)
	Query(ctx context.Context, q model.AuditQuery) (*model.AuditPage, error)
}

// PresignParams groups parameters for presigned URL issuance.
type PresignParams struct {
	Key         string
	ContentType string
	TTL         time.Duration
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// ObjectStorage is the object store holding uploaded document bytes.
type ObjectStorage interface {
	Bucket() string
	IssueUploadURL(ctx context.Context, params PresignParams) (string, error)
	IssueDownloadURL(ctx context.Context, params PresignParams) (string, error)
	// StatObject returns nil, nil when key does not exist.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)
	OpenObject(ctx context.Context, key string) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// ScanVerdict is the outcome of an antivirus scan.
type ScanVerdict struct {
	Infected  bool      `json:"infected"`
	Signature string    `json:"signature,omitempty"`
	Engine    string    `json:"engine"`
	ScannedAt time.Time `json:"scannedAt"`
}

// Scanner inspects document bytes for malware.
type Scanner interface {
	Scan(ctx context.Context, name string, r io.Reader) (*ScanVerdict, error)
}

// JobHandler processes one job. A returned error triggers retry or failure.
type JobHandler func(ctx context.Context, job *model.Job) error

// JobEnqueuer adds jobs to a queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, req model.EnqueueRequest) (*model.Job, error)
}

// JobQueue is the producer and observability surface of the job queue.
type JobQueue interface {
	JobEnqueuer
	GetJobCounts(ctx context.Context, queue string) (*model.JobCounts, error)
	HealthCheck(ctx context.Context) bool
}

// AuditRecorder records audit events without blocking the caller on the store.
type AuditRecorder interface {
	LogAsync(ctx context.Context, event model.AuditEvent) error
}
