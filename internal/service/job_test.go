package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainjob "github.com/target/mmk-docpipe/internal/domain/job"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
	"github.com/target/mmk-docpipe/internal/mocks"
)

type stubJobNotifier struct {
	subscribeCalls []string
	stopCalled     bool
}

func (s *stubJobNotifier) Subscribe(queue string) (func(), <-chan struct{}) {
	s.subscribeCalls = append(s.subscribeCalls, queue)
	ch := make(chan struct{})
	return func() {}, ch
}

func (s *stubJobNotifier) StopAll() {
	s.stopCalled = true
}

var _ domainjob.Notifier = (*stubJobNotifier)(nil)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestJobService(t *testing.T, repo *mocks.MockJobRepository) (*JobService, *stubJobNotifier) {
	t.Helper()
	notifier := &stubJobNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		Notifier:     notifier,
		Schemas:      domainjob.MustNewSchemaRegistry(),
		Clock:        func() time.Time { return testNow },
	})
	return svc, notifier
}

func scanPayload() model.ScanDocumentPayload {
	return model.ScanDocumentPayload{
		DocumentID: "8d7c2b9e-2f1a-4f7e-9c55-0d3c1f6b8a42",
		StorageKey: "prescription/patient-1/1704110400000-2c6d1c52-6f0e-4a7e-8d3e-7e5f7b9a1c11.pdf",
		Bucket:     "docs",
	}
}

func TestNewJobService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		notifier := &stubJobNotifier{}
		svc, err := NewJobService(JobServiceOptions{
			Repo:         repo,
			DefaultLease: 30 * time.Second,
			Notifier:     notifier,
		})
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, svc.LeasePolicy().Default())
		assert.Equal(t, model.DefaultAttempts, svc.defaultAttempts)
		assert.Equal(t, notifier, svc.notifier)
	})

	t.Run("default notifier uses repo as waiter", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{Repo: repo, DefaultLease: time.Second})
		require.NoError(t, err)
		assert.IsType(t, &domainjob.DefaultNotifier{}, svc.notifier)
	})

	t.Run("missing repo", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{DefaultLease: time.Second})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JobRepository is required")
	})

	t.Run("missing lease", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{Repo: repo})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DefaultLease must be positive")
	})

	t.Run("must panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNewJobService(JobServiceOptions{}) })
	})
}

func TestJobService_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("applies defaults", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				assert.Equal(t, model.QueueDocumentScan, req.Queue)
				assert.Equal(t, model.JobKindScanDocument, req.Kind)
				assert.Equal(t, model.DefaultAttempts, req.MaxAttempts)
				assert.Equal(t, model.DefaultBackoff(), req.Backoff)
				assert.Nil(t, req.ScheduledAt)
				assert.JSONEq(t, `{"documentId":"8d7c2b9e-2f1a-4f7e-9c55-0d3c1f6b8a42",
					"storageKey":"prescription/patient-1/1704110400000-2c6d1c52-6f0e-4a7e-8d3e-7e5f7b9a1c11.pdf",
					"bucket":"docs"}`, string(req.Payload))
				return &model.Job{ID: "job-1", Queue: req.Queue, Kind: req.Kind, Status: model.JobStatusPending}, nil
			})

		job, err := svc.Enqueue(ctx, model.EnqueueRequest{
			Queue:   model.QueueDocumentScan,
			Kind:    model.JobKindScanDocument,
			Payload: scanPayload(),
		})
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
	})

	t.Run("delay and explicit options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		backoff := model.Backoff{Kind: model.BackoffFixed, Delay: 5 * time.Second}
		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				require.NotNil(t, req.ScheduledAt)
				assert.Equal(t, testNow.Add(time.Minute), *req.ScheduledAt)
				assert.Equal(t, 5, req.MaxAttempts)
				assert.Equal(t, backoff, req.Backoff)
				assert.Equal(t, 80, req.Priority)
				return &model.Job{ID: "job-2"}, nil
			})

		_, err := svc.Enqueue(ctx, model.EnqueueRequest{
			Queue:   model.QueueDocumentScan,
			Kind:    model.JobKindScanDocument,
			Payload: scanPayload(),
			Options: model.EnqueueOptions{Delay: time.Minute, Attempts: 5, Backoff: &backoff, Priority: 80},
		})
		require.NoError(t, err)
	})

	t.Run("schema violation is a validation error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		_, err := svc.Enqueue(ctx, model.EnqueueRequest{
			Queue:   model.QueueDocumentScan,
			Kind:    model.JobKindScanDocument,
			Payload: json.RawMessage(`{"documentId":"x"}`),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown kinds skip schema validation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Create(ctx, gomock.Any()).Return(&model.Job{ID: "job-3"}, nil)

		_, err := svc.Enqueue(ctx, model.EnqueueRequest{Queue: "misc", Kind: "noop", Payload: map[string]int{"n": 1}})
		require.NoError(t, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		tests := []struct {
			name string
			req  model.EnqueueRequest
		}{
			{"missing payload", model.EnqueueRequest{Queue: "q", Kind: "k"}},
			{"negative delay", model.EnqueueRequest{Queue: "q", Kind: "k", Payload: 1, Options: model.EnqueueOptions{Delay: -time.Second}}},
			{"priority out of range", model.EnqueueRequest{Queue: "q", Kind: "k", Payload: 1, Options: model.EnqueueOptions{Priority: 101}}},
			{"missing queue", model.EnqueueRequest{Kind: "k", Payload: 1}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Enqueue(ctx, tt.req)
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err), err.Error())
			})
		}
	})

	t.Run("broker failure is unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		boom := errors.New("connection refused")
		repo.EXPECT().Create(ctx, gomock.Any()).Return(nil, boom)

		_, err := svc.Enqueue(ctx, model.EnqueueRequest{
			Queue:   model.QueueDocumentScan,
			Kind:    model.JobKindScanDocument,
			Payload: scanPayload(),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
		assert.ErrorIs(t, err, boom)
	})
}

func TestJobService_ReserveNext(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)

	t.Run("uses default lease", func(t *testing.T) {
		repo.EXPECT().ReserveNext(ctx, "q", 30).Return(&model.Job{ID: "j"}, nil)
		job, err := svc.ReserveNext(ctx, "q", 0)
		require.NoError(t, err)
		assert.Equal(t, "j", job.ID)
	})

	t.Run("clamps sub-second lease", func(t *testing.T) {
		repo.EXPECT().ReserveNext(ctx, "q", 1).Return(&model.Job{ID: "j"}, nil)
		_, err := svc.ReserveNext(ctx, "q", 200*time.Millisecond)
		require.NoError(t, err)
	})

	t.Run("no jobs passes through", func(t *testing.T) {
		repo.EXPECT().ReserveNext(ctx, "q", 30).Return(nil, model.ErrNoJobsAvailable)
		_, err := svc.ReserveNext(ctx, "q", 0)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("repo error wrapped", func(t *testing.T) {
		repo.EXPECT().ReserveNext(ctx, "q", 30).Return(nil, errors.New("db"))
		_, err := svc.ReserveNext(ctx, "q", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserve next job")
	})
}

func TestJobService_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)

	repo.EXPECT().Heartbeat(ctx, "j", 10).Return(true, nil)
	ok, err := svc.Heartbeat(ctx, "j", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	repo.EXPECT().Complete(ctx, "j").Return(true, nil)
	ok, err = svc.Complete(ctx, "j")
	require.NoError(t, err)
	assert.True(t, ok)

	repo.EXPECT().Fail(ctx, "j", "boom").Return(&model.Job{ID: "j", Status: model.JobStatusPending}, nil)
	job, err := svc.Fail(ctx, "j", "boom")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	_, err = svc.Fail(ctx, "j", "")
	require.Error(t, err)
}

func TestJobService_CountsAndHealth(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, notifier := newTestJobService(t, repo)

	repo.EXPECT().Counts(ctx, "q").Return(&model.JobCounts{Waiting: 2}, nil)
	counts, err := svc.Counts(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Waiting)

	repo.EXPECT().Counts(ctx, "q").Return(nil, errors.New("db"))
	_, err = svc.Counts(ctx, "q")
	assert.True(t, apperrors.IsUnavailable(err))

	repo.EXPECT().Ping(gomock.Any()).DoAndReturn(func(c context.Context) error {
		_, ok := c.Deadline()
		assert.True(t, ok, "health check must bound the ping")
		return nil
	})
	assert.True(t, svc.HealthCheck(ctx))

	repo.EXPECT().Ping(gomock.Any()).Return(errors.New("down"))
	assert.False(t, svc.HealthCheck(ctx))

	_, _ = svc.Subscribe("q")
	svc.StopNotifications()
	assert.Equal(t, []string{"q"}, notifier.subscribeCalls)
	assert.True(t, notifier.stopCalled)
}

func TestJobService_FailedAdministration(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)

	repo.EXPECT().ListFailed(ctx, "q", 10).Return([]*model.Job{{ID: "a"}}, nil)
	jobs, err := svc.ListFailed(ctx, "q", 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	repo.EXPECT().RetryFailed(ctx, "q").Return(int64(3), nil)
	n, err := svc.RetryFailed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
