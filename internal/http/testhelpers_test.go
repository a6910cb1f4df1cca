package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
	"github.com/target/mmk-docpipe/internal/mocks"
	"github.com/target/mmk-docpipe/internal/service"
)

const (
	testDocID      = "0b6f7c3e-7e5e-4c43-8a57-6f0b1b0c7a11"
	testStorageKey = "prescription/user-42/1704110400000-2c6d1c52-6f0e-4a7e-8d3e-7e5f7b9a1c11.pdf"
)

var (
	testNow  = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	testHash = strings.Repeat("ab", 32)
)

// Bearer tokens understood by the harness verifier.
var testTokens = map[string]model.Requester{
	"patient-token":    {ID: "user-42", Role: model.RolePatient},
	"other-token":      {ID: "user-7", Role: model.RolePatient},
	"compliance-token": {ID: "c-1", Role: model.RoleCompliance},
	"admin-token":      {ID: "admin-1", Role: model.RoleAdmin},
}

// fakeQueue is a core.JobQueue that serves canned counts.
type fakeQueue struct {
	mu       sync.Mutex
	counts   map[string]*model.JobCounts
	countErr error
	enqueued []model.EnqueueRequest
	healthy  bool
}

func (q *fakeQueue) Enqueue(_ context.Context, req model.EnqueueRequest) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, req)
	return &model.Job{ID: "job-1", Queue: req.Queue, Kind: req.Kind, Status: model.JobStatusPending}, nil
}

func (q *fakeQueue) GetJobCounts(_ context.Context, queue string) (*model.JobCounts, error) {
	if q.countErr != nil {
		return nil, q.countErr
	}
	if c, ok := q.counts[queue]; ok {
		return c, nil
	}
	return &model.JobCounts{}, nil
}

func (q *fakeQueue) HealthCheck(context.Context) bool { return q.healthy }

type routerHarness struct {
	handler   http.Handler
	docs      *mocks.MockDocumentRepository
	storage   *mocks.MockObjectStorage
	auditRepo *mocks.MockAuditRepository
	queue     *fakeQueue
	probes    map[string]error
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &routerHarness{
		docs:      mocks.NewMockDocumentRepository(ctrl),
		storage:   mocks.NewMockObjectStorage(ctrl),
		auditRepo: mocks.NewMockAuditRepository(ctrl),
		queue:     &fakeQueue{healthy: true},
		probes:    map[string]error{},
	}

	verifier := mocks.NewMockRequesterVerifier(ctrl)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, token string) (model.Requester, error) {
			if r, ok := testTokens[token]; ok {
				return r, nil
			}
			return model.Requester{}, apperrors.Unauthorized("invalid token")
		}).AnyTimes()

	docs, err := service.NewDocumentService(service.DocumentServiceOptions{
		Repo:    h.docs,
		Storage: h.storage,
		Queue:   h.queue,
		Clock:   func() time.Time { return testNow },
	})
	require.NoError(t, err)
	audit, err := service.NewAuditLogger(service.AuditLoggerOptions{Repo: h.auditRepo, Queue: h.queue})
	require.NoError(t, err)

	var probes []Probe
	for _, name := range []string{"queue", "storage"} {
		probes = append(probes, Probe{Name: name, Check: func(context.Context) error { return h.probes[name] }})
	}

	h.handler = NewRouter(RouterServices{
		Documents:    docs,
		Audit:        audit,
		Jobs:         h.queue,
		Verifier:     verifier,
		Probes:       probes,
		ReadyTimeout: time.Second,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		MaxBodyBytes: 4096,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

type testRequest struct {
	method string
	path   string
	token  string
	body   any
	header map[string]string
}

func (h *routerHarness) do(t *testing.T, req testRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func testDocument(owner string, status model.ScanStatus) *model.Document {
	return &model.Document{
		ID:           testDocID,
		OwnerID:      owner,
		OwnerKind:    model.OwnerKindPatient,
		DocumentType: model.DocumentTypePrescription,
		Filename:     "x-ray.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    2048,
		StorageKey:   testStorageKey,
		ContentHash:  testHash,
		ScanStatus:   status,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}
