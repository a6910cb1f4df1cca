package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// ScanRecorder receives scan verdicts.
type ScanRecorder interface {
	ScanCompleted(ctx context.Context, params ScanCompletedParams) error
}

// ScanWorkerOptions groups dependencies for ScanWorker.
type ScanWorkerOptions struct {
	Storage   core.ObjectStorage // Required: object storage holding document bytes
	Scanner   core.Scanner       // Required: antivirus engine
	Documents ScanRecorder       // Required: verdict sink
	Logger    *slog.Logger       // Optional: structured logger
}

// ScanWorker handles scan-document jobs.
type ScanWorker struct {
	storage   core.ObjectStorage
	scanner   core.Scanner
	documents ScanRecorder
	logger    *slog.Logger
}

// NewScanWorker constructs a ScanWorker.
func NewScanWorker(opts ScanWorkerOptions) (*ScanWorker, error) {
	if opts.Storage == nil {
		return nil, errors.New("ObjectStorage is required")
	}
	if opts.Scanner == nil {
		return nil, errors.New("Scanner is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("ScanRecorder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanWorker{
		storage:   opts.Storage,
		scanner:   opts.Scanner,
		documents: opts.Documents,
		logger:    logger.With("component", "scan_worker"),
	}, nil
}

type scanResult struct {
	Engine    string `json:"engine"`
	Signature string `json:"signature,omitempty"`
	ScannedAt string `json:"scannedAt"`
	JobID     string `json:"jobId"`
	Attempt   int    `json:"attempt"`
}

// Handle scans the job's object and records the verdict. Every error is
// returned so the queue retries the job.
func (w *ScanWorker) Handle(ctx context.Context, job *model.Job) error {
	if job.Kind != model.JobKindScanDocument {
		return fmt.Errorf("unsupported job kind %q on %s", job.Kind, job.Queue)
	}
	var payload model.ScanDocumentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode scan payload: %w", err)
	}
	if payload.DocumentID == "" || payload.StorageKey == "" {
		return errors.New("scan payload requires documentId and storageKey")
	}
	if payload.Bucket != "" && payload.Bucket != w.storage.Bucket() {
		w.logger.WarnContext(ctx, "scan job bucket differs from configured bucket",
			"job_id", job.ID,
			"job_bucket", payload.Bucket,
			"bucket", w.storage.Bucket())
	}

	verdict, err := w.scan(ctx, payload.StorageKey)
	if err != nil {
		return err
	}

	status := model.ScanStatusClean
	if verdict.Infected {
		status = model.ScanStatusInfected
	}
	result, err := json.Marshal(scanResult{
		Engine:    verdict.Engine,
		Signature: verdict.Signature,
		ScannedAt: verdict.ScannedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		JobID:     job.ID,
		Attempt:   job.AttemptsMade,
	})
	if err != nil {
		return fmt.Errorf("encode scan result: %w", err)
	}

	err = w.documents.ScanCompleted(ctx, ScanCompletedParams{
		DocumentID: payload.DocumentID,
		Status:     status,
		Result:     result,
	})
	if apperrors.IsConflict(err) {
		w.logger.WarnContext(ctx, "document already has a different verdict",
			"job_id", job.ID,
			"document_id", payload.DocumentID,
			"scan_status", status,
			"error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record scan verdict: %w", err)
	}

	w.logger.InfoContext(ctx, "document scanned",
		"job_id", job.ID,
		"document_id", payload.DocumentID,
		"scan_status", status,
		"engine", verdict.Engine,
		"attempt", job.AttemptsMade,
	)
	return nil
}

func (w *ScanWorker) scan(ctx context.Context, key string) (*core.ScanVerdict, error) {
	obj, err := w.storage.OpenObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = obj.Close() }()

	verdict, err := w.scanner.Scan(ctx, key, obj)
	if err != nil {
		return nil, fmt.Errorf("scan object: %w", err)
	}
	if verdict == nil {
		return nil, errors.New("scanner returned no verdict")
	}
	return verdict, nil
}
