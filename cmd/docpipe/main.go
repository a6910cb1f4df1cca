// Command docpipe runs the document pipeline: the HTTP API, the scan worker,
// the audit writer and the job reaper, as selected by SERVICES.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "docpipe exited", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit on fatal startup or runtime error
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.IsDev)
	logger.InfoContext(ctx, "starting docpipe service",
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"storage_bucket", cfg.Storage.Bucket,
		"auth_mode", cfg.Auth.Mode,
		"scanner_mode", cfg.Scanner.Mode,
		"redis_enabled", cfg.Redis.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(&cfg),
	)
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	in, err := connect(&cfg, logger)
	if err != nil {
		return err
	}
	defer in.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, in.db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup")
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          in.db,
		RedisClient: in.redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          in.db,
		RedisClient: in.redis,
		Logger:      logger,
	})
}

// infra holds the process-wide connections. redis is nil when the document
// cache is disabled.
type infra struct {
	db    *sql.DB
	redis redis.UniversalClient
}

func connect(cfg *config.AppConfig, logger *slog.Logger) (*infra, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	client, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &infra{db: db, redis: client}, nil
}

func (in *infra) close(ctx context.Context, logger *slog.Logger) {
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if err := in.db.Close(); err != nil {
		logger.ErrorContext(ctx, "close database failed", "error", err)
	}
}
