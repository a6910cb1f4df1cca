package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-docpipe/internal/core"
	domainjob "github.com/target/mmk-docpipe/internal/domain/job"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// DefaultHealthCheckTimeout bounds HealthCheck when the caller sets no deadline.
const DefaultHealthCheckTimeout = 2 * time.Second

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for jobs
	Logger          *slog.Logger              // Optional: structured logger
	Schemas         *domainjob.SchemaRegistry // Optional: payload schemas; kinds without one are not validated
	DefaultAttempts int                       // Optional: attempts when EnqueueOptions.Attempts is zero
	Metrics         metrics.Sink              // Optional: enqueue metrics
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
	Clock           func() time.Time          // Optional: time source for delayed jobs
}

// JobService is the producer and consumer facade over the job broker.
//
// This service manages:
// - Enqueue with payload schema validation and option defaults
// - Job reservation and lease management
// - Pub/sub notification fan-out for idle workers
// - Queue counts, health and failed-job administration.
type JobService struct {
	repo            core.JobRepository
	leasePolicy     *domainjob.LeasePolicy
	notifier        domainjob.Notifier
	schemas         *domainjob.SchemaRegistry
	defaultAttempts int
	metrics         metrics.Sink
	logger          *slog.Logger
	now             func() time.Time
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	attempts := opts.DefaultAttempts
	if attempts <= 0 {
		attempts = model.DefaultAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_service")

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &JobService{
		repo:            opts.Repo,
		leasePolicy:     leasePolicy,
		notifier:        notifier,
		schemas:         opts.Schemas,
		defaultAttempts: attempts,
		metrics:         opts.Metrics,
		logger:          logger,
		now:             now,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Enqueue validates the payload for its kind and adds the job to its queue.
// Broker failures are returned as unavailable errors.
func (s *JobService) Enqueue(ctx context.Context, req model.EnqueueRequest) (*model.Job, error) {
	create, err := s.buildCreateRequest(req)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, create)
	metrics.EmitEnqueue(s.metrics, req.Queue, err)
	if err != nil {
		if apperrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, apperrors.Unavailable(err, fmt.Sprintf("enqueue %s job on %s", req.Kind, req.Queue))
	}

	s.logger.DebugContext(ctx, "job enqueued",
		"job_id", job.ID,
		"queue", job.Queue,
		"kind", job.Kind,
		"scheduled_at", job.ScheduledAt,
	)
	return job, nil
}

func (s *JobService) buildCreateRequest(req model.EnqueueRequest) (*model.CreateJobRequest, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode job payload")
	}
	if s.schemas != nil && s.schemas.Known(req.Kind) {
		if err := s.schemas.Validate(req.Kind, payload); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job payload")
		}
	}

	opts := req.Options
	if opts.Delay < 0 {
		return nil, apperrors.ValidationField("delay", "delay must be >= 0")
	}
	create := &model.CreateJobRequest{
		Queue:       req.Queue,
		Kind:        req.Kind,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: opts.Attempts,
		Backoff:     model.DefaultBackoff(),
	}
	if create.MaxAttempts == 0 {
		create.MaxAttempts = s.defaultAttempts
	}
	if opts.Backoff != nil {
		create.Backoff = *opts.Backoff
	}
	if opts.Delay > 0 {
		at := s.now().Add(opts.Delay)
		create.ScheduledAt = &at
	}
	if err := create.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return create, nil
}

func encodePayload(p any) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return nil, errors.New("payload is required")
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

// LeasePolicy exposes the lease policy used for reservations.
func (s *JobService) LeasePolicy() *domainjob.LeasePolicy {
	return s.leasePolicy
}

// ReserveNext reserves the next due job of queue. It returns
// model.ErrNoJobsAvailable when the queue has nothing due.
func (s *JobService) ReserveNext(ctx context.Context, queue string, lease time.Duration) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Source == domainjob.LeaseSourceClamped {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", lease,
			"queue", queue)
	}

	job, err := s.repo.ReserveNext(ctx, queue, decision.Seconds())
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	s.logger.DebugContext(ctx, "job reserved",
		"job_id", job.ID,
		"queue", queue,
		"attempt", job.AttemptsMade,
		"lease_seconds", decision.Seconds(),
	)
	return job, nil
}

// Subscribe creates a subscription for job notifications of the given queue.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(queue string) (func(), <-chan struct{}) {
	return s.notifier.Subscribe(queue)
}

// StopNotifications closes every listener and subscription.
func (s *JobService) StopNotifications() {
	s.notifier.StopAll()
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds())
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	if updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "job_id", id, "extend_seconds", decision.Seconds())
	}
	return updated, nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	if completed {
		s.logger.DebugContext(ctx, "job completed", "job_id", id)
	}
	return completed, nil
}

// Fail records a failed attempt. The returned job is pending when a retry is
// scheduled and failed when attempts are exhausted; it is nil when the job was
// no longer running.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	if errMsg == "" {
		return nil, errors.New("error message required")
	}
	job, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}
	if job != nil {
		s.logger.DebugContext(ctx, "job attempt failed",
			"job_id", id,
			"status", job.Status,
			"attempts_made", job.AttemptsMade,
			"max_attempts", job.MaxAttempts,
			"error", errMsg)
	}
	return job, nil
}

// Counts returns the per-state job tally of queue.
func (s *JobService) Counts(ctx context.Context, queue string) (*model.JobCounts, error) {
	counts, err := s.repo.Counts(ctx, queue)
	if err != nil {
		return nil, apperrors.Unavailable(err, fmt.Sprintf("get job counts for %s", queue))
	}
	return counts, nil
}

// HealthCheck reports whether the broker answers within the context deadline,
// or DefaultHealthCheckTimeout when ctx has none.
func (s *JobService) HealthCheck(ctx context.Context) bool {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthCheckTimeout)
		defer cancel()
	}
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "job broker health check failed", "error", err)
		return false
	}
	return true
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// ListFailed returns the most recently failed jobs of queue.
func (s *JobService) ListFailed(ctx context.Context, queue string, limit int) ([]*model.Job, error) {
	jobs, err := s.repo.ListFailed(ctx, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs for %s: %w", queue, err)
	}
	return jobs, nil
}

// RetryFailed returns every failed job of queue to pending with a fresh attempt budget.
func (s *JobService) RetryFailed(ctx context.Context, queue string) (int64, error) {
	n, err := s.repo.RetryFailed(ctx, queue)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs for %s: %w", queue, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "requeued failed jobs", "queue", queue, "count", n)
	}
	return n, nil
}
