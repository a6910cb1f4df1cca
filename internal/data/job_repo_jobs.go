package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/target/mmk-docpipe/internal/data/pgxutil"
	domainjob "github.com/target/mmk-docpipe/internal/domain/job"
	"github.com/target/mmk-docpipe/internal/domain/model"
)

// reserveNextSQL leases the highest-priority due job and counts the attempt.
const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE queue = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    attempts_made = j.attempts_made + 1,
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

const insertJobSQL = `
  INSERT INTO jobs (queue, kind, status, priority, payload, max_attempts, backoff_kind, backoff_delay_ms, scheduled_at, created_at, updated_at)
  VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9, $9)
  RETURNING ` + jobColumns

// Create inserts a pending job and notifies listeners of its queue in the same transaction.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, insertJobSQL,
				req.Queue,
				req.Kind,
				req.Priority,
				[]byte(req.Payload),
				req.MaxAttempts,
				string(req.Backoff.Kind),
				req.Backoff.Delay.Milliseconds(),
				scheduledAt,
				now,
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			if job, err = collectJob(rows); err != nil {
				return fmt.Errorf("collect job: %w", err)
			}
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(req.Queue), job.ID); err != nil {
				return fmt.Errorf("send job notification: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Advisory lock namespace for per-queue lease recovery.
const advisoryLockRequeueMajor int32 = 1001

func advisoryLockRequeueMinor(queue string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(queue))
	return int32(h.Sum32() & math.MaxInt32)
}

// requeueExpiredSQL returns expired leases to pending, or fails them when the
// last attempt was the one that lost its lease.
const requeueExpiredSQL = `
  UPDATE jobs
  SET
    status = CASE WHEN attempts_made >= max_attempts THEN 'failed' ELSE 'pending' END,
    completed_at = CASE WHEN attempts_made >= max_attempts THEN $2::timestamptz ELSE NULL END,
    last_error = CASE WHEN attempts_made >= max_attempts THEN 'lease expired' ELSE last_error END,
    scheduled_at = CASE WHEN attempts_made >= max_attempts THEN scheduled_at ELSE $2::timestamptz END,
    lease_expires_at = NULL,
    updated_at = $2
  WHERE id IN (
    SELECT id FROM jobs
    WHERE ($1::text IS NULL OR queue = $1)
      AND status = 'running'
      AND lease_expires_at IS NOT NULL
      AND lease_expires_at < $2
    ORDER BY lease_expires_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  )`

const requeueExpiredBatch = 500

func (r *JobRepo) requeueExpired(ctx context.Context, queue string) (int64, error) {
	var n int64
	_, err := pgxutil.WithTryAdvisoryLock(ctx, r.DB,
		pgxutil.AdvisoryLock{Major: advisoryLockRequeueMajor, Minor: advisoryLockRequeueMinor(queue)},
		func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, requeueExpiredSQL, queue, r.timeProvider.Now().UTC(), requeueExpiredBatch)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			n, err = res.RowsAffected()
			return err
		})
	return n, err
}

// ReserveNext leases the next due job of queue for leaseSeconds.
func (r *JobRepo) ReserveNext(ctx context.Context, queue string, leaseSeconds int) (*model.Job, error) {
	if queue == "" {
		return nil, errors.New("queue is required")
	}
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if n, err := r.requeueExpired(ctx, queue); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	} else if n > 0 {
		r.logger.InfoContext(ctx, "recovered expired leases", "queue", queue, "count", n)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			rows, err := tx.Query(ctx, reserveNextSQL, queue, now, now.Add(time.Duration(leaseSeconds)*time.Second))
			if err != nil {
				return fmt.Errorf("reserve job: %w", err)
			}
			j, err := collectJob(rows)
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if err != nil {
				return fmt.Errorf("reserve job: %w", err)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease on a running job. It returns false when the job
// is no longer running (lease lost, completed elsewhere).
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, now.Add(time.Duration(leaseSeconds)*time.Second), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return n > 0, nil
}

// Complete marks a running job as completed.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return n > 0, nil
}

// Fail records errMsg on a running job and either reschedules it after its
// backoff delay or, when attempts are exhausted, marks it failed. It returns
// nil, nil when the job is no longer running.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	var out *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND status = 'running' FOR UPDATE`, id)
			if err != nil {
				return fmt.Errorf("lock job: %w", err)
			}
			current, err := collectJob(rows)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lock job: %w", err)
			}

			now := r.timeProvider.Now().UTC()
			decision := domainjob.DecideRetry(current)
			status, scheduledAt := model.JobStatusFailed, current.ScheduledAt
			var completedAt *time.Time
			if decision.Retry {
				status, scheduledAt = model.JobStatusPending, now.Add(decision.Delay)
			} else {
				completedAt = &now
			}

			rows, err = tx.Query(ctx, `
				UPDATE jobs
				SET status = $2,
				    last_error = $3,
				    scheduled_at = $4,
				    completed_at = $5,
				    lease_expires_at = NULL,
				    updated_at = $6
				WHERE id = $1
				RETURNING `+jobColumns, id, string(status), errMsg, scheduledAt, completedAt, now)
			if err != nil {
				return fmt.Errorf("fail job: %w", err)
			}
			out, err = collectJob(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	if out != nil && out.Status == model.JobStatusPending {
		r.notifyAt(ctx, out)
	}
	return out, nil
}

// notifyAt wakes listeners for retries that are already due.
func (r *JobRepo) notifyAt(ctx context.Context, job *model.Job) {
	if job.ScheduledAt.After(r.timeProvider.Now()) {
		return
	}
	if _, err := r.DB.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(job.Queue), job.ID); err != nil {
		r.logger.WarnContext(ctx, "notify retry failed", "job_id", job.ID, "error", err)
	}
}

// Counts tallies the jobs of queue by observable state.
func (r *JobRepo) Counts(ctx context.Context, queue string) (*model.JobCounts, error) {
	var c model.JobCounts
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending' AND scheduled_at <= $2) AS waiting,
    count(*) FILTER (WHERE status = 'running')                        AS active,
    count(*) FILTER (WHERE status = 'completed')                      AS completed,
    count(*) FILTER (WHERE status = 'failed')                         AS failed,
    count(*) FILTER (WHERE status = 'pending' AND scheduled_at > $2)  AS delayed
  FROM jobs
  WHERE queue = $1
  `, queue, r.timeProvider.Now().UTC()).Scan(&c.Waiting, &c.Active, &c.Completed, &c.Failed, &c.Delayed)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return &c, nil
}

// ListFailed returns the most recently failed jobs of queue.
func (r *JobRepo) ListFailed(ctx context.Context, queue string, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE queue = $1 AND status = 'failed'
		ORDER BY completed_at DESC NULLS LAST, id DESC
		LIMIT $2
	`, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RetryFailed gives every failed job of queue a fresh attempt budget.
func (r *JobRepo) RetryFailed(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'pending',
				    attempts_made = 0,
				    last_error = NULL,
				    completed_at = NULL,
				    scheduled_at = $2,
				    updated_at = $2
				WHERE queue = $1 AND status = 'failed'
			`, queue, now)
			if err != nil {
				return fmt.Errorf("retry failed jobs: %w", err)
			}
			if n, err = res.RowsAffected(); err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			_, err = tx.ExecContext(ctx, `SELECT pg_notify($1::text, 'retry')`, notifyChannel(queue))
			return err
		},
	})
	return n, err
}

// WaitForNotification blocks until a job is added to queue or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context, queue string) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	channel := notifyChannel(queue)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, err := conn.ExecContext(ctx, "LISTEN "+quoted); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, err := sc.Conn().WaitForNotification(ctx)
		return err
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Ping checks broker connectivity.
func (r *JobRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
