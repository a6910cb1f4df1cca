package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/mmk-docpipe/internal/bootstrap"
	"github.com/target/mmk-docpipe/internal/data"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/service"
)

// jobAdmin is the slice of the job service the queue commands use.
type jobAdmin interface {
	Counts(ctx context.Context, queue string) (*model.JobCounts, error)
	ListFailed(ctx context.Context, queue string, limit int) ([]*model.Job, error)
	RetryFailed(ctx context.Context, queue string) (int64, error)
}

func connectDB(cmdCtx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(cmdCtx *commandContext, db *sql.DB) {
	if closeErr := db.Close(); closeErr != nil {
		cmdCtx.Logger.Warn("db close failed", "error", closeErr)
	}
}

// openJobAdmin builds a job service over Postgres. The returned func releases
// the notifier and the connection pool.
//
//nolint:ireturn // commands depend on the narrow admin interface.
func openJobAdmin(cmdCtx *commandContext) (jobAdmin, func(), error) {
	db, err := connectDB(cmdCtx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:         data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
		DefaultLease: cmdCtx.Config.Queue.DefaultLease,
		Logger:       cmdCtx.Logger,
	})
	if err != nil {
		closeDB(cmdCtx, db)
		return nil, nil, fmt.Errorf("create job service: %w", err)
	}
	return svc, func() {
		svc.StopNotifications()
		closeDB(cmdCtx, db)
	}, nil
}
