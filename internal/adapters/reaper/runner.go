// Package reaper runs job housekeeping as a standalone background service.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/data"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
	"github.com/target/mmk-docpipe/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner. Repo overrides
// the Postgres job repository built from DB.
type RunnerOptions struct {
	DB      *sql.DB
	Repo    core.ReaperRepository
	Config  config.ReaperConfig
	Metrics metrics.CleanupSink
	Logger  *slog.Logger
}

// Runner owns one ReaperService.
type Runner struct {
	svc *service.ReaperService
}

func validate(cfg config.ReaperConfig) error {
	switch {
	case cfg.Interval <= 0:
		return fmt.Errorf("reaper interval must be positive, got %s", cfg.Interval)
	case cfg.BatchSize <= 0:
		return fmt.Errorf("reaper batch size must be positive, got %d", cfg.BatchSize)
	case cfg.CompletedMaxAge <= 0:
		return fmt.Errorf("reaper completed max age must be positive, got %s", cfg.CompletedMaxAge)
	}
	return nil
}

// NewRunner validates the configuration and wires the reaper service.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("database connection is required")
		}
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	if err := validate(opts.Config); err != nil {
		return nil, err
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{svc: svc}, nil
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.svc.Run(ctx); err != nil {
		return fmt.Errorf("reaper: %w", err)
	}
	return nil
}
