package jobrunner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/mmk-docpipe/internal/core"
	domainjob "github.com/target/mmk-docpipe/internal/domain/job"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/service"
)

// memRepo is an in-memory broker with the reservation and retry semantics of
// the Postgres repository.
type memRepo struct {
	mu         sync.Mutex
	jobs       map[string]*model.Job
	seq        int
	signal     chan struct{}
	heartbeats int
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: make(map[string]*model.Job), signal: make(chan struct{})}
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	return &c
}

func (r *memRepo) wakeLocked() {
	close(r.signal)
	r.signal = make(chan struct{})
}

func (r *memRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	now := time.Now()
	j := &model.Job{
		ID:          fmt.Sprintf("job-%d", r.seq),
		Queue:       req.Queue,
		Kind:        req.Kind,
		Status:      model.JobStatusPending,
		Priority:    req.Priority,
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
		Backoff:     req.Backoff,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ScheduledAt != nil {
		j.ScheduledAt = *req.ScheduledAt
	}
	r.jobs[j.ID] = j
	r.wakeLocked()
	return cloneJob(j), nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return cloneJob(j), nil
}

func (r *memRepo) ReserveNext(_ context.Context, queue string, leaseSeconds int) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var due []*model.Job
	for _, j := range r.jobs {
		if j.Queue == queue && j.Status == model.JobStatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].Priority != due[b].Priority {
			return due[a].Priority > due[b].Priority
		}
		return due[a].ScheduledAt.Before(due[b].ScheduledAt)
	})
	j := due[0]
	lease := now.Add(time.Duration(leaseSeconds) * time.Second)
	j.Status = model.JobStatusRunning
	j.AttemptsMade++
	j.StartedAt = &now
	j.LeaseExpiresAt = &lease
	return cloneJob(j), nil
}

func (r *memRepo) WaitForNotification(ctx context.Context, _ string) error {
	r.mu.Lock()
	ch := r.signal
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (r *memRepo) Heartbeat(_ context.Context, id string, leaseSeconds int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != model.JobStatusRunning {
		return false, nil
	}
	lease := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	j.LeaseExpiresAt = &lease
	r.heartbeats++
	return true, nil
}

func (r *memRepo) Complete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != model.JobStatusRunning {
		return false, nil
	}
	now := time.Now()
	j.Status = model.JobStatusCompleted
	j.CompletedAt = &now
	j.LeaseExpiresAt = nil
	return true, nil
}

func (r *memRepo) Fail(_ context.Context, id, errMsg string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != model.JobStatusRunning {
		return nil, nil
	}
	now := time.Now()
	j.LastError = &errMsg
	j.LeaseExpiresAt = nil
	if d := domainjob.DecideRetry(j); d.Retry {
		j.Status = model.JobStatusPending
		j.ScheduledAt = now.Add(d.Delay)
	} else {
		j.Status = model.JobStatusFailed
		j.CompletedAt = &now
	}
	return cloneJob(j), nil
}

func (r *memRepo) Counts(_ context.Context, queue string) (*model.JobCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c model.JobCounts
	now := time.Now()
	for _, j := range r.jobs {
		if j.Queue != queue {
			continue
		}
		switch j.State(now) {
		case model.JobStateWaiting:
			c.Waiting++
		case model.JobStateActive:
			c.Active++
		case model.JobStateCompleted:
			c.Completed++
		case model.JobStateFailed:
			c.Failed++
		case model.JobStateDelayed:
			c.Delayed++
		}
	}
	return &c, nil
}

func (r *memRepo) ListFailed(_ context.Context, queue string, _ int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Queue == queue && j.Status == model.JobStatusFailed {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

func (r *memRepo) RetryFailed(_ context.Context, queue string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.Queue == queue && j.Status == model.JobStatusFailed {
			j.Status = model.JobStatusPending
			j.AttemptsMade = 0
			j.ScheduledAt = time.Now()
			n++
		}
	}
	if n > 0 {
		r.wakeLocked()
	}
	return n, nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) job(t *testing.T, id string) *model.Job {
	t.Helper()
	j, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return j
}

func (r *memRepo) heartbeatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heartbeats
}

var _ core.JobRepository = (*memRepo)(nil)

func newTestJobService(t *testing.T, repo core.JobRepository) *service.JobService {
	t.Helper()
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		NotifierOptions: domainjob.NotifierOptions{
			WaitWindow: 20 * time.Millisecond,
			RetryDelay: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return svc
}
