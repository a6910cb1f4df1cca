package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/data/pgxutil"
	"github.com/target/mmk-docpipe/internal/domain/model"
)

// Advisory lock namespace for reaper operations. Major key 1000 is reserved
// for docpipe housekeeping.
const (
	advisoryLockReaperMajor   int32 = 1000
	advisoryLockReaperDelete  int32 = 1
	advisoryLockReaperRequeue int32 = 2
)

// DeleteOldJobs deletes up to BatchSize jobs with the given status whose
// completion is older than MaxAge. Failed jobs are retained for inspection and
// are rejected here.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if params.Status != model.JobStatusCompleted {
		return 0, fmt.Errorf("only completed jobs may be pruned, got %q", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var n int64
	_, err := pgxutil.WithTryAdvisoryLock(ctx, r.DB,
		pgxutil.AdvisoryLock{Major: advisoryLockReaperMajor, Minor: advisoryLockReaperDelete},
		func(tx *sql.Tx) error {
			cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = $1
					  AND COALESCE(completed_at, updated_at) < $2
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $3
				)
			`, string(params.Status), cutoff, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}
			n, err = res.RowsAffected()
			return err
		})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RequeueExpiredLeases recovers expired leases across every queue.
func (r *JobRepo) RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var n int64
	_, err := pgxutil.WithTryAdvisoryLock(ctx, r.DB,
		pgxutil.AdvisoryLock{Major: advisoryLockReaperMajor, Minor: advisoryLockReaperRequeue},
		func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, requeueExpiredSQL, nil, r.timeProvider.Now().UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("requeue expired leases: %w", err)
			}
			n, err = res.RowsAffected()
			return err
		})
	if err != nil {
		return 0, err
	}
	return n, nil
}

var _ core.ReaperRepository = (*JobRepo)(nil)
var _ core.JobRepository = (*JobRepo)(nil)
