// Package testutil provides testing utilities and helpers for the docpipe job queue.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Queue:       model.QueueDocumentScan,
			Kind:        model.JobKindScanDocument,
			Payload:     json.RawMessage(`{"document_id":"00000000-0000-0000-0000-000000000001"}`),
			MaxAttempts: model.DefaultAttempts,
			Backoff:     model.DefaultBackoff(),
		},
	}
}

// WithQueue sets the queue and kind.
func (b *JobRequestBuilder) WithQueue(queue, kind string) *JobRequestBuilder {
	b.req.Queue = queue
	b.req.Kind = kind
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithAttempts sets the attempt budget.
func (b *JobRequestBuilder) WithAttempts(attempts int) *JobRequestBuilder {
	b.req.MaxAttempts = attempts
	return b
}

// WithBackoff sets the retry policy.
func (b *JobRequestBuilder) WithBackoff(kind model.BackoffKind, delay time.Duration) *JobRequestBuilder {
	b.req.Backoff = model.Backoff{Kind: kind, Delay: delay}
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// AuditJobRequest creates an audit write job.
func AuditJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithQueue(model.QueueAuditEvents, model.JobKindWriteAuditEvent).
		WithPayloadString(`{"id":"evt-1","actor_id":"user-1","action":"document.read"}`).
		Build()
}

// ScheduledJobRequest creates a job request scheduled for the future.
func ScheduledJobRequest(scheduledAt time.Time) *model.CreateJobRequest {
	return NewJobRequest().WithScheduledAt(scheduledAt).Build()
}

// RetryableJobRequest creates a job request with a fixed zero-delay backoff.
func RetryableJobRequest(attempts int) *model.CreateJobRequest {
	return NewJobRequest().
		WithAttempts(attempts).
		WithBackoff(model.BackoffFixed, 0).
		Build()
}
