package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
	"github.com/target/mmk-docpipe/internal/mocks"
)

type fakeScanRecorder struct {
	calls []ScanCompletedParams
	err   error
}

func (f *fakeScanRecorder) ScanCompleted(_ context.Context, p ScanCompletedParams) error {
	f.calls = append(f.calls, p)
	return f.err
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func scanJob(t *testing.T, payload model.ScanDocumentPayload) *model.Job {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return &model.Job{
		ID:           "job-7",
		Queue:        model.QueueDocumentScan,
		Kind:         model.JobKindScanDocument,
		Payload:      b,
		AttemptsMade: 2,
	}
}

func newTestScanWorker(t *testing.T, recorder ScanRecorder) (*ScanWorker, *mocks.MockObjectStorage, *mocks.MockScanner) {
	t.Helper()
	ctrl := gomock.NewController(t)
	storage := mocks.NewMockObjectStorage(ctrl)
	scanner := mocks.NewMockScanner(ctrl)
	w, err := NewScanWorker(ScanWorkerOptions{Storage: storage, Scanner: scanner, Documents: recorder})
	require.NoError(t, err)
	return w, storage, scanner
}

func TestScanWorker_Handle(t *testing.T) {
	ctx := context.Background()
	payload := model.ScanDocumentPayload{DocumentID: testDocID, StorageKey: testStorageKey, Bucket: "docs"}
	scannedAt := time.Date(2024, 1, 1, 12, 0, 1, 250_000_000, time.UTC)

	t.Run("infected verdict recorded with result", func(t *testing.T) {
		recorder := &fakeScanRecorder{}
		w, storage, scanner := newTestScanWorker(t, recorder)
		body := &closeTracker{Reader: strings.NewReader("X5O!P%@AP")}

		storage.EXPECT().Bucket().Return("docs").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(body, nil)
		scanner.EXPECT().Scan(ctx, testStorageKey, body).Return(&core.ScanVerdict{
			Infected:  true,
			Signature: "Eicar-Test-Signature",
			Engine:    "clamav-rest",
			ScannedAt: scannedAt,
		}, nil)

		require.NoError(t, w.Handle(ctx, scanJob(t, payload)))
		assert.True(t, body.closed)
		require.Len(t, recorder.calls, 1)
		call := recorder.calls[0]
		assert.Equal(t, testDocID, call.DocumentID)
		assert.Equal(t, model.ScanStatusInfected, call.Status)
		assert.JSONEq(t, `{
			"engine": "clamav-rest",
			"signature": "Eicar-Test-Signature",
			"scannedAt": "2024-01-01T12:00:01.250Z",
			"jobId": "job-7",
			"attempt": 2
		}`, string(call.Result))
	})

	t.Run("clean verdict", func(t *testing.T) {
		recorder := &fakeScanRecorder{}
		w, storage, scanner := newTestScanWorker(t, recorder)

		storage.EXPECT().Bucket().Return("other-bucket").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(io.NopCloser(strings.NewReader("%PDF")), nil)
		scanner.EXPECT().Scan(ctx, testStorageKey, gomock.Any()).Return(&core.ScanVerdict{Engine: "sig", ScannedAt: scannedAt}, nil)

		require.NoError(t, w.Handle(ctx, scanJob(t, payload)))
		require.Len(t, recorder.calls, 1)
		assert.Equal(t, model.ScanStatusClean, recorder.calls[0].Status)
	})

	t.Run("storage failure is retried", func(t *testing.T) {
		recorder := &fakeScanRecorder{}
		w, storage, _ := newTestScanWorker(t, recorder)
		storage.EXPECT().Bucket().Return("docs").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(nil, errors.New("NoSuchKey"))

		err := w.Handle(ctx, scanJob(t, payload))
		assert.ErrorContains(t, err, "open object")
		assert.Empty(t, recorder.calls)
	})

	t.Run("engine failure is retried", func(t *testing.T) {
		recorder := &fakeScanRecorder{}
		w, storage, scanner := newTestScanWorker(t, recorder)
		storage.EXPECT().Bucket().Return("docs").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(io.NopCloser(strings.NewReader("")), nil)
		scanner.EXPECT().Scan(ctx, testStorageKey, gomock.Any()).Return(nil, errors.New("503"))

		assert.ErrorContains(t, w.Handle(ctx, scanJob(t, payload)), "scan object")
		assert.Empty(t, recorder.calls)
	})

	t.Run("conflicting verdict completes the job", func(t *testing.T) {
		recorder := &fakeScanRecorder{err: apperrors.Conflict("document already scanned as clean")}
		w, storage, scanner := newTestScanWorker(t, recorder)
		storage.EXPECT().Bucket().Return("docs").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(io.NopCloser(strings.NewReader("")), nil)
		scanner.EXPECT().Scan(ctx, testStorageKey, gomock.Any()).Return(&core.ScanVerdict{Infected: true, ScannedAt: scannedAt}, nil)

		require.NoError(t, w.Handle(ctx, scanJob(t, payload)))
	})

	t.Run("recorder failure is retried", func(t *testing.T) {
		recorder := &fakeScanRecorder{err: errors.New("db down")}
		w, storage, scanner := newTestScanWorker(t, recorder)
		storage.EXPECT().Bucket().Return("docs").AnyTimes()
		storage.EXPECT().OpenObject(ctx, testStorageKey).Return(io.NopCloser(strings.NewReader("")), nil)
		scanner.EXPECT().Scan(ctx, testStorageKey, gomock.Any()).Return(&core.ScanVerdict{ScannedAt: scannedAt}, nil)

		assert.ErrorContains(t, w.Handle(ctx, scanJob(t, payload)), "record scan verdict")
	})

	t.Run("malformed payloads", func(t *testing.T) {
		w, _, _ := newTestScanWorker(t, &fakeScanRecorder{})

		err := w.Handle(ctx, &model.Job{Kind: model.JobKindScanDocument, Payload: json.RawMessage(`{"documentId":""}`)})
		assert.ErrorContains(t, err, "requires documentId")

		err = w.Handle(ctx, &model.Job{Kind: model.JobKindWriteAuditEvent, Queue: model.QueueDocumentScan})
		assert.ErrorContains(t, err, "unsupported job kind")
	})
}
