package data

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/testutil"
)

func newTestJobRepo(db *sql.DB, tp TimeProvider) *JobRepo {
	return NewJobRepo(db, RepoConfig{TimeProvider: tp})
}

func TestJobRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestJobRepo(db, nil)
		ctx := context.Background()

		job, err := repo.Create(ctx, testutil.NewJobRequest().WithPriority(7).Build())
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.QueueDocumentScan, job.Queue)
		assert.Equal(t, model.JobKindScanDocument, job.Kind)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 7, job.Priority)
		assert.Zero(t, job.AttemptsMade)
		assert.Equal(t, model.DefaultBackoff(), job.Backoff)
		assert.JSONEq(t, `{"document_id":"00000000-0000-0000-0000-000000000001"}`, string(job.Payload))

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		repo := newTestJobRepo(nil, nil)
		_, err := repo.Create(context.Background(), testutil.NewJobRequest().WithAttempts(0).Build())
		assert.ErrorContains(t, err, "max attempts")
		_, err = repo.Create(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		_, err := newTestJobRepo(db, nil).GetByID(context.Background(), "00000000-0000-0000-0000-00000000dead")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobRepo_ReserveNext_Order(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestJobRepo(db, clock)
		ctx := context.Background()

		low, err := repo.Create(ctx, testutil.NewJobRequest().WithPriority(1).Build())
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
		high, err := repo.Create(ctx, testutil.NewJobRequest().WithPriority(9).Build())
		require.NoError(t, err)
		delayed, err := repo.Create(ctx, testutil.ScheduledJobRequest(clock.Now().Add(time.Hour)))
		require.NoError(t, err)
		_, err = repo.Create(ctx, testutil.AuditJobRequest())
		require.NoError(t, err)

		first, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		assert.Equal(t, high.ID, first.ID)
		assert.Equal(t, model.JobStatusRunning, first.Status)
		assert.Equal(t, 1, first.AttemptsMade)
		require.NotNil(t, first.LeaseExpiresAt)
		assert.Equal(t, clock.Now().Add(30*time.Second).UTC(), first.LeaseExpiresAt.UTC())

		second, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		assert.Equal(t, low.ID, second.ID)

		// The delayed job is not due and the audit job lives on another queue.
		_, err = repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		for _, id := range []string{first.ID, second.ID} {
			ok, err := repo.Complete(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
		}
		clock.Advance(2 * time.Hour)
		due, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		assert.Equal(t, delayed.ID, due.ID)
	})
}

func TestJobRepo_ReserveNext_Validation(t *testing.T) {
	repo := newTestJobRepo(nil, nil)
	_, err := repo.ReserveNext(context.Background(), "", 30)
	require.Error(t, err)
	_, err = repo.ReserveNext(context.Background(), model.QueueDocumentScan, 0)
	require.Error(t, err)
}

func TestJobRepo_ReserveNext_Concurrent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestJobRepo(db, nil)
		ctx := context.Background()

		const jobs = 10
		for range jobs {
			_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)
		}

		var (
			mu   sync.Mutex
			seen = map[string]int{}
		)
		reserve := func() error {
			for {
				j, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
				if errors.Is(err, model.ErrNoJobsAvailable) {
					return nil
				}
				if err != nil {
					return err
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}

		runner := testutil.NewConcurrentTestRunner(t)
		runner.AssertNoErrors(runner.RunConcurrent(reserve, reserve, reserve, reserve))

		assert.Len(t, seen, jobs)
		for id, n := range seen {
			assert.Equal(t, 1, n, "job %s reserved more than once", id)
		}
	})
}

func TestJobRepo_HeartbeatAndComplete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestJobRepo(db, clock)
		ctx := context.Background()

		_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		job, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 10)
		require.NoError(t, err)

		clock.Advance(5 * time.Second)
		ok, err := repo.Heartbeat(ctx, job.ID, 60)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(time.Minute).UTC(), got.LeaseExpiresAt.UTC())

		ok, err = repo.Complete(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		// A completed job has no lease to extend or complete again.
		ok, err = repo.Heartbeat(ctx, job.ID, 60)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Complete(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err = repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.LeaseExpiresAt)
	})
}

func TestJobRepo_Fail_RetriesThenFails(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestJobRepo(db, clock)
		ctx := context.Background()

		created, err := repo.Create(ctx, testutil.NewJobRequest().
			WithAttempts(2).
			WithBackoff(model.BackoffFixed, 10*time.Second).
			Build())
		require.NoError(t, err)

		job, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		failed, err := repo.Fail(ctx, job.ID, "scanner timeout")
		require.NoError(t, err)
		require.NotNil(t, failed)
		assert.Equal(t, model.JobStatusPending, failed.Status)
		assert.Equal(t, clock.Now().Add(10*time.Second).UTC(), failed.ScheduledAt)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, "scanner timeout", *failed.LastError)

		_, err = repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		clock.Advance(10 * time.Second)
		job, err = repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		assert.Equal(t, created.ID, job.ID)
		assert.Equal(t, 2, job.AttemptsMade)

		failed, err = repo.Fail(ctx, job.ID, "scanner timeout again")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, failed.Status)
		assert.NotNil(t, failed.CompletedAt)

		again, err := repo.Fail(ctx, job.ID, "late")
		require.NoError(t, err)
		assert.Nil(t, again)
	})
}

func TestJobRepo_Counts(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestJobRepo(db, clock)
		ctx := context.Background()

		for range 3 {
			_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, testutil.ScheduledJobRequest(clock.Now().Add(time.Hour)))
		require.NoError(t, err)
		_, err = repo.Create(ctx, testutil.AuditJobRequest())
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		done, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		_, err = repo.Complete(ctx, done.ID)
		require.NoError(t, err)

		counts, err := repo.Counts(ctx, model.QueueDocumentScan)
		require.NoError(t, err)
		assert.Equal(t, model.JobCounts{Waiting: 1, Active: 1, Completed: 1, Delayed: 1}, *counts)

		audit, err := repo.Counts(ctx, model.QueueAuditEvents)
		require.NoError(t, err)
		assert.Equal(t, 1, audit.Waiting)
	})
}

func TestJobRepo_ListAndRetryFailed(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestJobRepo(db, nil)
		ctx := context.Background()

		_, err := repo.Create(ctx, testutil.RetryableJobRequest(1))
		require.NoError(t, err)
		job, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 30)
		require.NoError(t, err)
		_, err = repo.Fail(ctx, job.ID, "object missing")
		require.NoError(t, err)

		failed, err := repo.ListFailed(ctx, model.QueueDocumentScan, 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, job.ID, failed[0].ID)

		n, err := repo.RetryFailed(ctx, model.QueueDocumentScan)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		retried, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, retried.Status)
		assert.Zero(t, retried.AttemptsMade)
		assert.Nil(t, retried.LastError)

		n, err = repo.RetryFailed(ctx, model.QueueDocumentScan)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestJobRepo_RequeuesExpiredLeaseOnReserve(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := newTestJobRepo(db, clock)
		ctx := context.Background()

		_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		job, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 5)
		require.NoError(t, err)

		clock.Advance(6 * time.Second)
		again, err := repo.ReserveNext(ctx, model.QueueDocumentScan, 5)
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)
		assert.Equal(t, 2, again.AttemptsMade)
	})
}

func TestJobRepo_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestJobRepo(db, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- repo.WaitForNotification(ctx, model.QueueAuditEvents) }()

		// Keep producing until the listener has subscribed and returns.
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case err := <-errCh:
				require.NoError(t, err)
				return
			case <-ticker.C:
				_, err := repo.Create(ctx, testutil.AuditJobRequest())
				require.NoError(t, err)
			case <-ctx.Done():
				t.Fatal("notification not received")
			}
		}
	})
}
