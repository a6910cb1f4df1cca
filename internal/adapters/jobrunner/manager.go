package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// JobService is the job service surface the Manager needs.
type JobService interface {
	Queue
	Enqueue(ctx context.Context, req model.EnqueueRequest) (*model.Job, error)
	Counts(ctx context.Context, queue string) (*model.JobCounts, error)
	HealthCheck(ctx context.Context) bool
	StopNotifications()
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Jobs              JobService    // Required: job service
	Metrics           metrics.Sink  // Optional: lifecycle metrics
	Logger            *slog.Logger  // Optional: structured logger
	ReserveRetryDelay time.Duration // Optional: passed to every runner
}

// Manager owns the worker registry and runs every registered Runner.
type Manager struct {
	jobs       JobService
	metrics    metrics.Sink
	logger     *slog.Logger
	retryDelay time.Duration

	mu      sync.Mutex
	runners map[string]*Runner
	group   *errgroup.Group
	runCtx  context.Context //nolint:containedctx // set only while Run is active
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:       opts.Jobs,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "job_manager"),
		retryDelay: opts.ReserveRetryDelay,
		runners:    make(map[string]*Runner),
	}, nil
}

// Enqueue adds a job to its queue.
func (m *Manager) Enqueue(ctx context.Context, req model.EnqueueRequest) (*model.Job, error) {
	return m.jobs.Enqueue(ctx, req)
}

// GetJobCounts returns the per-state tally of queue.
func (m *Manager) GetJobCounts(ctx context.Context, queue string) (*model.JobCounts, error) {
	return m.jobs.Counts(ctx, queue)
}

// HealthCheck reports whether the broker is reachable.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	return m.jobs.HealthCheck(ctx)
}

// RegisterWorker attaches handler to queue. A queue has at most one runner:
// registering again returns the existing runner and ignores the new handler.
// Runners registered while Run is active start immediately.
func (m *Manager) RegisterWorker(queue string, handler core.JobHandler, opts model.WorkerOptions) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.runners[queue]; ok {
		m.logger.Warn("worker already registered for queue; ignoring new handler", "queue", queue)
		return existing, nil
	}

	runner, err := NewRunner(RunnerOptions{
		Jobs:              m.jobs,
		Handler:           handler,
		Metrics:           m.metrics,
		Logger:            m.logger,
		Queue:             queue,
		Concurrency:       opts.Concurrency,
		Lease:             opts.Lease,
		ReserveRetryDelay: m.retryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("register worker for %s: %w", queue, err)
	}
	m.runners[queue] = runner
	m.logger.Info("worker registered", "queue", queue, "concurrency", runner.Concurrency())

	if m.group != nil && m.runCtx.Err() == nil {
		m.start(runner)
	}
	return runner, nil
}

// Runner returns the runner registered for queue.
func (m *Manager) Runner(queue string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[queue]
	return r, ok
}

// Queues returns the registered queue names in sorted order.
func (m *Manager) Queues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedQueuesLocked()
}

// Run starts every registered runner and blocks until ctx is cancelled.
// Runners drain first, then the queue notification listeners are stopped.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.group != nil {
		m.mu.Unlock()
		return errors.New("job manager already running")
	}
	g, gctx := errgroup.WithContext(ctx)
	m.group, m.runCtx = g, gctx
	for _, q := range m.sortedQueuesLocked() {
		m.start(m.runners[q])
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "job manager started", "queues", m.Queues())
	<-gctx.Done()
	err := g.Wait()

	m.mu.Lock()
	m.group, m.runCtx = nil, nil
	m.mu.Unlock()

	m.jobs.StopNotifications()
	m.logger.InfoContext(context.WithoutCancel(ctx), "job manager stopped")

	if err != nil {
		return err
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(cerr, context.Canceled) {
		return cerr
	}
	return nil
}

// start must be called with m.mu held.
func (m *Manager) start(r *Runner) {
	ctx := m.runCtx
	m.group.Go(func() error {
		if err := r.Run(ctx); err != nil {
			return fmt.Errorf("runner %s: %w", r.Queue(), err)
		}
		return nil
	})
}

func (m *Manager) sortedQueuesLocked() []string {
	out := make([]string, 0, len(m.runners))
	for q := range m.runners {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

var _ core.JobQueue = (*Manager)(nil)
