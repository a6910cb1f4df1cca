package jobrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
)

type recordingSink struct {
	mu   sync.Mutex
	jobs []metrics.JobMetric
}

func (s *recordingSink) ObserveJob(m metrics.JobMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, m)
}

func (s *recordingSink) ObserveEnqueue(string, string) {}

func (s *recordingSink) transitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for _, m := range s.jobs {
		out = append(out, m.Transition)
	}
	return out
}

const testQueue = "test-queue"

func fastRetry(attempts int) model.EnqueueOptions {
	return model.EnqueueOptions{
		Attempts: attempts,
		Backoff:  &model.Backoff{Kind: model.BackoffFixed, Delay: 10 * time.Millisecond},
	}
}

type managerHarness struct {
	repo    *memRepo
	manager *Manager
	sink    *recordingSink
	cancel  context.CancelFunc
	done    chan error
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	repo := newMemRepo()
	sink := &recordingSink{}
	m, err := NewManager(ManagerOptions{
		Jobs:              newTestJobService(t, repo),
		Metrics:           sink,
		ReserveRetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return &managerHarness{repo: repo, manager: m, sink: sink}
}

func (h *managerHarness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.manager.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
}

func (h *managerHarness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func (h *managerHarness) enqueue(t *testing.T, opts model.EnqueueOptions) *model.Job {
	t.Helper()
	job, err := h.manager.Enqueue(context.Background(), model.EnqueueRequest{
		Queue:   testQueue,
		Kind:    "test-kind",
		Payload: map[string]string{"k": "v"},
		Options: opts,
	})
	require.NoError(t, err)
	return job
}

func (h *managerHarness) waitStatus(t *testing.T, id string, status model.JobStatus) *model.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.repo.job(t, id).Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return h.repo.job(t, id)
}

func (h *managerHarness) waitRunning(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.manager.mu.Lock()
		defer h.manager.mu.Unlock()
		return h.manager.group != nil
	}, time.Second, 5*time.Millisecond)
}

func (h *managerHarness) waitTransitions(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.sink.transitions()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.sink.transitions()
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(ManagerOptions{})
	assert.ErrorContains(t, err, "job service is required")
}

func TestManager_RegisterWorker_Idempotent(t *testing.T) {
	h := newManagerHarness(t)
	var first, second atomic.Int32

	r1, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		first.Add(1)
		return nil
	}, model.WorkerOptions{Concurrency: 2})
	require.NoError(t, err)

	r2, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		second.Add(1)
		return nil
	}, model.WorkerOptions{Concurrency: 9})
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, 2, r2.Concurrency())
	assert.Equal(t, []string{testQueue}, h.manager.Queues())

	h.start(t)
	job := h.enqueue(t, model.EnqueueOptions{})
	h.waitStatus(t, job.ID, model.JobStatusCompleted)

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(0), second.Load())
}

func TestManager_RegisterWorker_RejectsInvalid(t *testing.T) {
	h := newManagerHarness(t)

	_, err := h.manager.RegisterWorker("", func(context.Context, *model.Job) error { return nil }, model.WorkerOptions{})
	assert.ErrorContains(t, err, "queue name is required")

	_, err = h.manager.RegisterWorker(testQueue, nil, model.WorkerOptions{})
	assert.ErrorContains(t, err, "job handler is required")

	_, ok := h.manager.Runner(testQueue)
	assert.False(t, ok, "failed registration must not occupy the queue")
}

func TestManager_DefaultConcurrency(t *testing.T) {
	h := newManagerHarness(t)
	r, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error { return nil }, model.WorkerOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConcurrency, r.Concurrency())
}

func TestManager_RetryBound(t *testing.T) {
	h := newManagerHarness(t)
	var calls atomic.Int32
	_, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		calls.Add(1)
		return errors.New("engine unreachable")
	}, model.WorkerOptions{})
	require.NoError(t, err)
	h.start(t)

	job := h.enqueue(t, fastRetry(3))
	failed := h.waitStatus(t, job.ID, model.JobStatusFailed)

	// No further attempts once the budget is spent.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, failed.AttemptsMade)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "engine unreachable", *failed.LastError)
	assert.Equal(t, []string{
		metrics.TransitionRetried,
		metrics.TransitionRetried,
		metrics.TransitionFailed,
	}, h.waitTransitions(t, 3))

	counts, err := h.manager.GetJobCounts(context.Background(), testQueue)
	require.NoError(t, err)
	assert.Equal(t, model.JobCounts{Failed: 1}, *counts)
}

func TestManager_FailsTwiceThenSucceeds(t *testing.T) {
	h := newManagerHarness(t)
	var calls atomic.Int32
	_, err := h.manager.RegisterWorker(testQueue, func(_ context.Context, job *model.Job) error {
		n := calls.Add(1)
		assert.Equal(t, int(n), job.AttemptsMade)
		if n <= 2 {
			return errors.New("transient")
		}
		return nil
	}, model.WorkerOptions{})
	require.NoError(t, err)
	h.start(t)

	job := h.enqueue(t, fastRetry(3))
	done := h.waitStatus(t, job.ID, model.JobStatusCompleted)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, done.AttemptsMade)
	assert.Equal(t, []string{
		metrics.TransitionRetried,
		metrics.TransitionRetried,
		metrics.TransitionCompleted,
	}, h.waitTransitions(t, 3))
}

func TestManager_HandlerPanicIsRetried(t *testing.T) {
	h := newManagerHarness(t)
	var calls atomic.Int32
	_, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		if calls.Add(1) == 1 {
			panic("nil map write")
		}
		return nil
	}, model.WorkerOptions{Concurrency: 1})
	require.NoError(t, err)
	h.start(t)

	job := h.enqueue(t, fastRetry(3))
	done := h.waitStatus(t, job.ID, model.JobStatusCompleted)
	assert.Equal(t, 2, done.AttemptsMade)
	require.NotNil(t, done.LastError)
	assert.Contains(t, *done.LastError, "handler panic: nil map write")
}

func TestManager_RegisterWhileRunning(t *testing.T) {
	h := newManagerHarness(t)
	h.start(t)
	job := h.enqueue(t, model.EnqueueOptions{})

	h.waitRunning(t)

	r, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error { return nil }, model.WorkerOptions{})
	require.NoError(t, err)

	h.waitStatus(t, job.ID, model.JobStatusCompleted)
	assert.True(t, r.Running())
}

func TestManager_RunTwice(t *testing.T) {
	h := newManagerHarness(t)
	h.start(t)
	h.waitRunning(t)

	assert.ErrorContains(t, h.manager.Run(context.Background()), "already running")
}

func TestManager_ShutdownDrainsInFlight(t *testing.T) {
	h := newManagerHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var handlerCtxErr atomic.Value
	_, err := h.manager.RegisterWorker(testQueue, func(ctx context.Context, _ *model.Job) error {
		close(started)
		<-release
		handlerCtxErr.Store(ctx.Err() == nil)
		return nil
	}, model.WorkerOptions{Concurrency: 1})
	require.NoError(t, err)
	h.start(t)

	job := h.enqueue(t, model.EnqueueOptions{})
	<-started

	h.cancel()
	h.cancel = nil
	select {
	case <-h.done:
		t.Fatal("manager returned while a handler was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after the handler returned")
	}

	assert.Equal(t, true, handlerCtxErr.Load(), "handler context must survive shutdown")
	assert.Equal(t, model.JobStatusCompleted, h.repo.job(t, job.ID).Status)
}

func TestManager_ConcurrencyLimit(t *testing.T) {
	h := newManagerHarness(t)
	release := make(chan struct{})
	var active, peak atomic.Int32
	r, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	}, model.WorkerOptions{Concurrency: 2})
	require.NoError(t, err)
	h.start(t)

	jobs := []*model.Job{
		h.enqueue(t, model.EnqueueOptions{}),
		h.enqueue(t, model.EnqueueOptions{}),
		h.enqueue(t, model.EnqueueOptions{}),
	}
	require.Eventually(t, func() bool { return r.InFlight() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), r.InFlight())

	close(release)
	for _, j := range jobs {
		h.waitStatus(t, j.ID, model.JobStatusCompleted)
	}
	assert.Equal(t, int32(2), peak.Load())
}

func TestManager_DelayedJobBecomesVisible(t *testing.T) {
	h := newManagerHarness(t)
	var handledAt atomic.Int64
	_, err := h.manager.RegisterWorker(testQueue, func(context.Context, *model.Job) error {
		handledAt.Store(time.Now().UnixNano())
		return nil
	}, model.WorkerOptions{})
	require.NoError(t, err)
	h.start(t)

	enqueuedAt := time.Now()
	job := h.enqueue(t, model.EnqueueOptions{Delay: 100 * time.Millisecond})
	h.waitStatus(t, job.ID, model.JobStatusCompleted)

	assert.GreaterOrEqual(t, time.Duration(handledAt.Load()-enqueuedAt.UnixNano()), 100*time.Millisecond)
}
