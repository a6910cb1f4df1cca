// Package jobrunner runs queue workers on top of the job service.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	obserrors "github.com/target/mmk-docpipe/internal/observability/errors"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// DefaultReserveRetryDelay is the pause after a failed reservation.
const DefaultReserveRetryDelay = time.Second

// Queue is the part of the job service a Runner drives.
type Queue interface {
	ReserveNext(ctx context.Context, queue string, lease time.Duration) (*model.Job, error)
	Subscribe(queue string) (func(), <-chan struct{})
	Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (*model.Job, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Jobs              Queue           // Required: job service
	Handler           core.JobHandler // Required: job handler
	Metrics           metrics.Sink    // Optional: lifecycle metrics
	Logger            *slog.Logger    // Optional: structured logger
	Queue             string          // Required: queue name
	Concurrency       int             // Optional: default model.DefaultConcurrency
	Lease             time.Duration   // Optional: zero picks the job service default
	ReserveRetryDelay time.Duration   // Optional: default DefaultReserveRetryDelay
}

// Runner processes one queue with a fixed number of worker goroutines.
type Runner struct {
	jobs       Queue
	handler    core.JobHandler
	metrics    metrics.Sink
	logger     *slog.Logger
	queue      string
	workers    int
	lease      time.Duration
	retryDelay time.Duration
	running    atomic.Bool
	inFlight   atomic.Int64
}

// NewRunner validates opts and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("job handler is required")
	}
	if opts.Queue == "" {
		return nil, errors.New("queue name is required")
	}
	if opts.Lease < 0 {
		return nil, errors.New("lease must not be negative")
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = model.DefaultConcurrency
	}
	retryDelay := opts.ReserveRetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultReserveRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:       opts.Jobs,
		handler:    opts.Handler,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "job_runner", "queue", opts.Queue),
		queue:      opts.Queue,
		workers:    workers,
		lease:      opts.Lease,
		retryDelay: retryDelay,
	}, nil
}

// Queue returns the queue name the runner processes.
func (r *Runner) Queue() string { return r.queue }

// Concurrency returns the number of worker goroutines.
func (r *Runner) Concurrency() int { return r.workers }

// Running reports whether Run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// InFlight returns the number of jobs currently being handled.
func (r *Runner) InFlight() int64 { return r.inFlight.Load() }

// Run starts the workers and blocks until ctx is cancelled and every in-flight
// handler has returned. Handler outcomes never stop the runner.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("runner for %s already running", r.queue)
	}
	defer r.running.Store(false)

	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "lease", r.lease)

	var wg sync.WaitGroup
	for range r.workers {
		// One subscription per worker so a broadcast wakes every idle worker.
		unsub, notify := r.jobs.Subscribe(r.queue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsub()
			r.workerLoop(ctx, notify)
		}()
	}
	wg.Wait()

	r.logger.InfoContext(context.WithoutCancel(ctx), "job runner stopped")
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.queue, r.lease)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, notify) {
				return
			}
		case ctx.Err() != nil:
			return
		default:
			r.logger.ErrorContext(ctx, "reserve job failed", "error", err)
			if !sleepCtx(ctx, r.retryDelay) {
				return
			}
		}
	}
}

// waitForNotify returns false once ctx ends or the subscription is closed.
func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// processJob runs the handler to completion even when ctx is cancelled so a
// shutdown drains in-flight work instead of abandoning it.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	jobCtx := context.WithoutCancel(ctx)
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Queue:      r.queue,
			Kind:       job.Kind,
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	stopHeartbeat := r.startHeartbeat(jobCtx, job)
	err := r.runHandler(jobCtx, job)
	stopHeartbeat()

	if err != nil {
		r.recordFailure(jobCtx, job, err, emit)
		return
	}

	completed, cerr := r.jobs.Complete(jobCtx, job.ID)
	switch {
	case cerr != nil:
		r.logger.ErrorContext(jobCtx, "complete job error", "job_id", job.ID, "error", cerr)
		emit(metrics.TransitionCompleted, metrics.ResultError, cerr)
	case completed:
		emit(metrics.TransitionCompleted, metrics.ResultSuccess, nil)
	default:
		// Lease expired and the job was requeued or taken by another worker.
		r.logger.WarnContext(jobCtx, "job was no longer running at completion", "job_id", job.ID)
		emit(metrics.TransitionCompleted, metrics.ResultNoop, nil)
	}
}

func (r *Runner) runHandler(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "job handler panicked",
				"job_id", job.ID,
				"panic", p,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler(ctx, job)
}

func (r *Runner) recordFailure(
	ctx context.Context,
	job *model.Job,
	handlerErr error,
	emit func(transition, result string, err error),
) {
	updated, err := r.jobs.Fail(ctx, job.ID, handlerErr.Error())
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", job.ID,
			"error", err,
			"original_error", handlerErr)
		emit(metrics.TransitionFailed, metrics.ResultError, handlerErr)
		return
	}
	if updated == nil {
		r.logger.WarnContext(ctx, "job was no longer running at failure", "job_id", job.ID, "error", handlerErr)
		emit(metrics.TransitionFailed, metrics.ResultNoop, handlerErr)
		return
	}

	attrs := []any{
		"job_id", job.ID,
		"kind", job.Kind,
		"attempts_made", updated.AttemptsMade,
		"max_attempts", updated.MaxAttempts,
		"error_class", obserrors.Classify(handlerErr),
		"error", handlerErr,
	}
	if updated.Status == model.JobStatusFailed {
		r.logger.ErrorContext(ctx, "job failed permanently", attrs...)
		emit(metrics.TransitionFailed, metrics.ResultError, handlerErr)
		return
	}
	r.logger.WarnContext(ctx, "job attempt failed; retry scheduled",
		append(attrs, "scheduled_at", updated.ScheduledAt)...)
	emit(metrics.TransitionRetried, metrics.ResultError, handlerErr)
}

// startHeartbeat extends the lease every lease/2 until the returned func is called.
func (r *Runner) startHeartbeat(ctx context.Context, job *model.Job) func() {
	interval := r.heartbeatInterval(job)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := r.jobs.Heartbeat(ctx, job.ID, r.lease)
				if err != nil && ctx.Err() == nil {
					r.logger.WarnContext(ctx, "job heartbeat failed", "job_id", job.ID, "error", err)
					continue
				}
				if err == nil && !ok {
					r.logger.WarnContext(ctx, "job lease lost", "job_id", job.ID)
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *Runner) heartbeatInterval(job *model.Job) time.Duration {
	lease := r.lease
	if lease <= 0 && job.StartedAt != nil && job.LeaseExpiresAt != nil {
		lease = job.LeaseExpiresAt.Sub(*job.StartedAt)
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return max(lease/2, 500*time.Millisecond)
}
