package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required
	Config  config.ReaperConfig   // Required
	Logger  *slog.Logger          // Optional
	Metrics metrics.CleanupSink   // Optional
}

// ReaperService keeps the jobs table healthy. Each sweep recovers running
// jobs whose lease expired, then prunes completed jobs past their retention.
// Failed jobs are never pruned.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics metrics.CleanupSink
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
	}, nil
}

// Run sweeps once after a short random delay, then on every interval tick.
// It returns nil when ctx is canceled and ctx.Err() on deadline.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"completed_max_age", s.config.CompletedMaxAge,
		"batch_size", s.config.BatchSize,
	)

	// Spread instances that start together.
	select {
	case <-time.After(s.startJitter()):
	case <-ctx.Done():
		return s.stopped(ctx)
	}
	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.stopped(ctx)
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReaperService) startJitter() time.Duration {
	limit := int64(s.config.Interval / 10)
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(limit)) //nolint:gosec // scheduling jitter
}

func (s *ReaperService) stopped(ctx context.Context) error {
	s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (s *ReaperService) sweep(ctx context.Context) {
	err := s.runCleanup(ctx)
	switch {
	case err == nil:
	case isContextCancellation(err):
		s.logger.DebugContext(ctx, "sweep interrupted", "error", err)
	default:
		s.logger.ErrorContext(ctx, "sweep failed", "error", err)
	}
}

type sweepStep struct {
	operation string
	label     string
	batch     func(context.Context) (int64, error)
}

func (s *ReaperService) steps() []sweepStep {
	return []sweepStep{
		{
			operation: "requeue_expired",
			label:     "requeue expired leases",
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.RequeueExpiredLeases(ctx, s.config.BatchSize)
			},
		},
		{
			operation: "delete_completed",
			label:     "delete old completed jobs",
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
					Status:    model.JobStatusCompleted,
					MaxAge:    s.config.CompletedMaxAge,
					BatchSize: s.config.BatchSize,
				})
			},
		},
	}
}

// runCleanup runs every step even when an earlier one fails. When every
// failure is a context cancellation the result is context.Canceled.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	var (
		errs        []error
		allCanceled = true
	)
	for _, step := range s.steps() {
		n, err := drainBatches(ctx, step.batch)
		metrics.EmitCleanup(s.metrics, metrics.CleanupMetric{
			Operation: step.operation,
			Count:     n,
			Err:       suppressContextCancellation(err),
		})
		if n > 0 {
			s.logger.InfoContext(ctx, step.label, "count", n)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if allCanceled {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
}

// drainBatches repeats batch until it affects no rows.
func drainBatches(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
