package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/mocks"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

// countingReaperRepo is safe for use from the Run goroutine.
type countingReaperRepo struct {
	requeueCalls atomic.Int32
	deleteCalls  atomic.Int32
	requeueErr   error
}

func (r *countingReaperRepo) DeleteOldJobs(context.Context, core.DeleteOldJobsParams) (int64, error) {
	r.deleteCalls.Add(1)
	return 0, nil
}

func (r *countingReaperRepo) RequeueExpiredLeases(context.Context, int) (int64, error) {
	r.requeueCalls.Add(1)
	return 0, r.requeueErr
}

type recordingCleanupSink struct {
	metrics []metrics.CleanupMetric
}

func (s *recordingCleanupSink) ObserveCleanup(m metrics.CleanupMetric) {
	s.metrics = append(s.metrics, m)
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		CompletedMaxAge: 7 * 24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &countingReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("drains every batch and records metrics", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockReaperRepository(ctrl)
		sink := &recordingCleanupSink{}

		gomock.InOrder(
			repo.EXPECT().RequeueExpiredLeases(gomock.Any(), 1000).Return(int64(3), nil),
			repo.EXPECT().RequeueExpiredLeases(gomock.Any(), 1000).Return(int64(0), nil),
		)
		completed := core.DeleteOldJobsParams{
			Status:    model.JobStatusCompleted,
			MaxAge:    7 * 24 * time.Hour,
			BatchSize: 1000,
		}
		gomock.InOrder(
			repo.EXPECT().DeleteOldJobs(gomock.Any(), completed).Return(int64(1000), nil),
			repo.EXPECT().DeleteOldJobs(gomock.Any(), completed).Return(int64(12), nil),
			repo.EXPECT().DeleteOldJobs(gomock.Any(), completed).Return(int64(0), nil),
		)

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: sink})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))
		assert.Equal(t, []metrics.CleanupMetric{
			{Operation: "requeue_expired", Count: 3},
			{Operation: "delete_completed", Count: 1012},
		}, sink.metrics)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockReaperRepository(ctrl)
		boom := errors.New("lock timeout")

		repo.EXPECT().RequeueExpiredLeases(gomock.Any(), 1000).Return(int64(0), boom)
		repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil)

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())
		require.Error(t, err)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "requeue expired leases")
	})

	t.Run("all steps canceled collapses to context.Canceled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockReaperRepository(ctrl)
		repo.EXPECT().RequeueExpiredLeases(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)
		repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})
		require.NoError(t, err)

		assert.Equal(t, context.Canceled, svc.runCleanup(context.Background()))
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &countingReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		assert.Eventually(t, func() bool { return repo.requeueCalls.Load() >= 1 }, time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			// Should return nil on graceful shutdown
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
		assert.GreaterOrEqual(t, repo.deleteCalls.Load(), int32(1))
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &countingReaperRepo{requeueErr: errors.New("test error")}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)
		// Should return context deadline exceeded, not the cleanup error
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.requeueCalls.Load(), int32(2))
	})
}
