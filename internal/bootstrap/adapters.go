package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/adapters/reaper"
	"github.com/target/mmk-docpipe/internal/adapters/scanner"
	"github.com/target/mmk-docpipe/internal/adapters/storage"
	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// BuildStorage creates the S3 object storage adapter.
func BuildStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*storage.S3Storage, error) {
	s3, err := storage.NewS3Storage(ctx, storage.S3Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create object storage: %w", err)
	}
	return s3, nil
}

// BuildScanner creates the antivirus scanner selected by SCANNER_MODE.
//
//nolint:ireturn // the scanner backend is chosen at runtime.
func BuildScanner(cfg config.ScannerConfig, logger *slog.Logger) (core.Scanner, error) {
	switch cfg.Mode {
	case config.ScannerModeHTTP:
		s, err := scanner.NewHTTPScanner(scanner.HTTPOptions{Config: cfg})
		if err != nil {
			return nil, fmt.Errorf("create http scanner: %w", err)
		}
		return s, nil
	case config.ScannerModeSignature, "":
		if logger != nil {
			logger.Warn("using signature scanner; only the EICAR test file is detected")
		}
		return scanner.NewSignatureScanner(nil), nil
	default:
		return nil, fmt.Errorf("unsupported scanner mode %q", cfg.Mode)
	}
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics metrics.CleanupSink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
