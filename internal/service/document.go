package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-docpipe/internal/core"
	domaindoc "github.com/target/mmk-docpipe/internal/domain/document"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

const (
	// DefaultUploadURLTTL is the lifetime of presigned upload URLs.
	DefaultUploadURLTTL = time.Hour
	// DefaultDownloadURLTTL is the lifetime of presigned download URLs.
	DefaultDownloadURLTTL = 5 * time.Minute
	// ScanAttempts is the attempt budget of every scan-document job.
	ScanAttempts = 3
)

// User-facing messages the upload UI matches on.
const (
	MsgFileNotFoundInStorage = "file not found in storage"
	MsgDocumentNotScanned    = "document has not passed security scan"
)

var errAccessDenied = apperrors.AccessDenied("access denied")

// DocumentServiceOptions groups dependencies for DocumentService.
type DocumentServiceOptions struct {
	Repo           core.DocumentRepository // Required: document metadata store
	Storage        core.ObjectStorage      // Required: object storage holding document bytes
	Queue          core.JobEnqueuer        // Required: broker for scan jobs
	Audit          core.AuditRecorder      // Optional: audit trail for uploads and downloads
	Cache          *core.DocumentCache     // Optional: document row cache
	UploadRules    *domaindoc.UploadRules  // Optional: mime allow-list and size limit
	UploadURLTTL   time.Duration           // Optional: default 1h
	DownloadURLTTL time.Duration           // Optional: default 5m
	Logger         *slog.Logger            // Optional: structured logger
	Clock          func() time.Time        // Optional: time source for storage keys
}

// DocumentService implements the upload, scan and download pipeline.
//
// This service manages:
// - Presigned upload authorization with owner-namespaced storage keys
// - Finalization into a pending document plus one scan job
// - Scan verdict recording and the clean-only download gate
// - Owner or elevated-role access checks on every read.
type DocumentService struct {
	repo        core.DocumentRepository
	storage     core.ObjectStorage
	queue       core.JobEnqueuer
	audit       core.AuditRecorder
	cache       *core.DocumentCache
	rules       *domaindoc.UploadRules
	uploadTTL   time.Duration
	downloadTTL time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(opts DocumentServiceOptions) (*DocumentService, error) {
	if opts.Repo == nil {
		return nil, errors.New("DocumentRepository is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("ObjectStorage is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobEnqueuer is required")
	}
	svc := &DocumentService{
		repo:        opts.Repo,
		storage:     opts.Storage,
		queue:       opts.Queue,
		audit:       opts.Audit,
		cache:       opts.Cache,
		rules:       opts.UploadRules,
		uploadTTL:   opts.UploadURLTTL,
		downloadTTL: opts.DownloadURLTTL,
		logger:      opts.Logger,
		now:         opts.Clock,
	}
	if svc.rules == nil {
		svc.rules = domaindoc.NewUploadRules(nil, 0)
	}
	if svc.uploadTTL <= 0 {
		svc.uploadTTL = DefaultUploadURLTTL
	}
	if svc.downloadTTL <= 0 {
		svc.downloadTTL = DefaultDownloadURLTTL
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	svc.logger = svc.logger.With("component", "document_service")
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// AuthorizeUploadRequest asks for a presigned upload target.
type AuthorizeUploadRequest struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	DocumentType string `json:"document_type"`
	RequesterID  string `json:"-"`
}

// AuthorizeUpload validates the request and issues a presigned PUT URL for a
// fresh storage key. Nothing is persisted.
func (s *DocumentService) AuthorizeUpload(
	ctx context.Context,
	req AuthorizeUploadRequest,
) (*model.UploadAuthorization, error) {
	if req.RequesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	if err := s.rules.CheckFilename(req.Filename); err != nil {
		return nil, err
	}
	if err := s.rules.CheckMimeType(req.MimeType); err != nil {
		return nil, err
	}
	docType, err := model.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, apperrors.ValidationField("document_type", err.Error())
	}

	key, err := domaindoc.NewStorageKey(docType, req.RequesterID, req.Filename, s.now())
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	url, err := s.storage.IssueUploadURL(ctx, core.PresignParams{
		Key:         key.String(),
		ContentType: req.MimeType,
		TTL:         s.uploadTTL,
	})
	if err != nil {
		return nil, apperrors.Unavailable(err, "issue upload url")
	}
	return &model.UploadAuthorization{
		UploadURL:  url,
		StorageKey: key.String(),
		ExpiresIn:  int(s.uploadTTL / time.Second),
	}, nil
}

// FinalizeUploadRequest confirms an upload the client completed.
type FinalizeUploadRequest struct {
	StorageKey string          `json:"storage_key"`
	SHA256Hash string          `json:"sha256_hash"`
	Filename   string          `json:"filename"`
	MimeType   string          `json:"mime_type"`
	SizeBytes  int64           `json:"size_bytes"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Requester  model.Requester `json:"-"`
}

// Validate checks the request fields that need no collaborator.
func (r *FinalizeUploadRequest) Validate(rules *domaindoc.UploadRules) error {
	if err := domaindoc.CheckContentHash(r.SHA256Hash); err != nil {
		return err
	}
	if err := rules.CheckFilename(r.Filename); err != nil {
		return err
	}
	if err := rules.CheckMimeType(r.MimeType); err != nil {
		return err
	}
	if err := rules.CheckSize(r.SizeBytes); err != nil {
		return err
	}
	if len(r.Metadata) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(r.Metadata, &obj); err != nil {
			return apperrors.ValidationField("metadata", "metadata must be a JSON object")
		}
	}
	return nil
}

// FinalizeUpload records a pending document for an object that exists in
// storage and enqueues exactly one scan job for it.
func (s *DocumentService) FinalizeUpload(
	ctx context.Context,
	req FinalizeUploadRequest,
) (*model.DocumentSummary, error) {
	if req.Requester.ID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	key, err := domaindoc.ParseStorageKey(req.StorageKey)
	if err != nil {
		return nil, apperrors.ValidationField("storage_key", "storage key is malformed")
	}
	if !req.Requester.CanAccess(key.OwnerID) {
		return nil, errAccessDenied
	}
	if err := req.Validate(s.rules); err != nil {
		return nil, err
	}

	obj, err := s.storage.StatObject(ctx, req.StorageKey)
	if err != nil {
		return nil, apperrors.Unavailable(err, "check object in storage")
	}
	if obj == nil {
		return nil, apperrors.Validation(MsgFileNotFoundInStorage)
	}
	if obj.Size != req.SizeBytes {
		return nil, apperrors.ValidationField("size_bytes", "size does not match the stored object")
	}

	doc, err := s.repo.Create(ctx, &model.CreateDocumentRequest{
		OwnerID:      key.OwnerID,
		OwnerKind:    req.Requester.Role.OwnerKind(),
		DocumentType: key.DocumentType,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		SizeBytes:    obj.Size,
		StorageKey:   req.StorageKey,
		ContentHash:  req.SHA256Hash,
		Metadata:     req.Metadata,
	})
	if apperrors.IsConflict(err) {
		return s.refinalize(ctx, req, key.OwnerID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.enqueueScan(ctx, doc); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, DocumentUploadEvent(req.Requester.ID, doc.ID, doc.DocumentType, doc.Filename))
	return doc.Summary(), nil
}

// refinalize handles a finalize for a storage key that already has a row.
// A pending row left behind by a failed enqueue gets its scan job now; a
// scanned row with the same content is returned as is.
func (s *DocumentService) refinalize(
	ctx context.Context,
	req FinalizeUploadRequest,
	ownerID string,
	conflict error,
) (*model.DocumentSummary, error) {
	doc, err := s.repo.GetByStorageKey(ctx, req.StorageKey)
	if apperrors.IsNotFound(err) {
		// The key belongs to a soft-deleted document.
		return nil, fmt.Errorf("create document: %w", conflict)
	}
	if err != nil {
		return nil, fmt.Errorf("load document by storage key: %w", err)
	}
	if doc.OwnerID != ownerID || doc.ContentHash != req.SHA256Hash {
		return nil, apperrors.Conflict("storage key is already finalized")
	}
	if doc.ScanStatus != model.ScanStatusPending {
		return doc.Summary(), nil
	}

	s.logger.InfoContext(ctx, "re-enqueueing scan for pending document", "document_id", doc.ID)
	if err := s.enqueueScan(ctx, doc); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, DocumentUploadEvent(req.Requester.ID, doc.ID, doc.DocumentType, doc.Filename))
	return doc.Summary(), nil
}

func (s *DocumentService) enqueueScan(ctx context.Context, doc *model.Document) error {
	job, err := s.queue.Enqueue(ctx, model.EnqueueRequest{
		Queue: model.QueueDocumentScan,
		Kind:  model.JobKindScanDocument,
		Payload: model.ScanDocumentPayload{
			DocumentID: doc.ID,
			StorageKey: doc.StorageKey,
			Bucket:     s.storage.Bucket(),
		},
		Options: model.EnqueueOptions{Attempts: ScanAttempts},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue scan job; document stays pending",
			"document_id", doc.ID,
			"error", err)
		return fmt.Errorf("enqueue scan for document %s: %w", doc.ID, err)
	}

	s.logger.InfoContext(ctx, "document finalized",
		"document_id", doc.ID,
		"job_id", job.ID,
		"document_type", doc.DocumentType,
		"size_bytes", doc.SizeBytes,
	)
	return nil
}

// ScanCompletedParams carries a scan verdict for one document.
type ScanCompletedParams struct {
	DocumentID string
	Status     model.ScanStatus
	Result     json.RawMessage
}

// ScanCompleted records a terminal verdict. Redelivery of the stored verdict
// is a no-op; a different verdict for an already scanned document is a conflict.
func (s *DocumentService) ScanCompleted(ctx context.Context, params ScanCompletedParams) error {
	if !params.Status.Terminal() {
		return apperrors.ValidationField("status", "scan status must be clean or infected")
	}
	if _, err := uuid.Parse(params.DocumentID); err != nil {
		return apperrors.NotFound("document not found")
	}
	if len(params.Result) > 0 && !json.Valid(params.Result) {
		return apperrors.ValidationField("result", "scan result must be valid JSON")
	}

	updated, err := s.repo.CompleteScan(ctx, core.CompleteScanParams{
		DocumentID: params.DocumentID,
		Status:     params.Status,
		Result:     params.Result,
	})
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	if !updated {
		doc, err := s.repo.GetByID(ctx, params.DocumentID)
		if err != nil {
			return err
		}
		if doc.ScanStatus != params.Status {
			return apperrors.Conflictf("document already scanned as %s", doc.ScanStatus)
		}
		s.logger.DebugContext(ctx, "duplicate scan verdict ignored",
			"document_id", params.DocumentID,
			"scan_status", params.Status)
		return nil
	}

	s.invalidate(ctx, params.DocumentID)
	s.logger.InfoContext(ctx, "document scan completed",
		"document_id", params.DocumentID,
		"scan_status", params.Status)
	return nil
}

// GetMetadata returns the document summary after the access check.
func (s *DocumentService) GetMetadata(
	ctx context.Context,
	documentID string,
	requester model.Requester,
) (*model.DocumentSummary, error) {
	doc, err := s.authorizedDocument(ctx, documentID, requester)
	if err != nil {
		return nil, err
	}
	return doc.Summary(), nil
}

// GetDownloadURL issues a short-lived GET URL for a clean document.
func (s *DocumentService) GetDownloadURL(
	ctx context.Context,
	documentID string,
	requester model.Requester,
) (*model.DownloadURL, error) {
	doc, err := s.authorizedDocument(ctx, documentID, requester)
	if err != nil {
		return nil, err
	}
	if doc.ScanStatus != model.ScanStatusClean {
		return nil, apperrors.Validation(MsgDocumentNotScanned)
	}

	url, err := s.storage.IssueDownloadURL(ctx, core.PresignParams{
		Key:         doc.StorageKey,
		ContentType: doc.MimeType,
		TTL:         s.downloadTTL,
	})
	if err != nil {
		return nil, apperrors.Unavailable(err, "issue download url")
	}

	s.recordAudit(ctx, DocumentDownloadEvent(requester.ID, doc.ID))
	return &model.DownloadURL{URL: url, ExpiresIn: int(s.downloadTTL / time.Second)}, nil
}

// ListOwnedRequest pages the requester's own documents.
type ListOwnedRequest struct {
	RequesterID string
	Page        model.PageRequest
	Filter      model.DocumentFilter
}

// ListOwned returns the requester's live documents newest first.
func (s *DocumentService) ListOwned(ctx context.Context, req ListOwnedRequest) (*model.DocumentPage, error) {
	if req.RequesterID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	if t := req.Filter.DocumentType; t != nil && !t.Valid() {
		return nil, apperrors.ValidationField("document_type", "unknown document type")
	}
	if st := req.Filter.ScanStatus; st != nil && !st.Valid() {
		return nil, apperrors.ValidationField("scan_status", "unknown scan status")
	}
	return s.repo.ListByOwner(ctx, model.DocumentListOptions{
		OwnerID: req.RequesterID,
		Filter:  req.Filter,
		Page:    req.Page,
	})
}

// SoftDelete hides the document from every read. The stored object is kept.
func (s *DocumentService) SoftDelete(ctx context.Context, documentID string, requester model.Requester) error {
	doc, err := s.authorizedDocument(ctx, documentID, requester)
	if err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if err := s.cache.MarkDeleted(ctx, doc.ID); err != nil {
		s.logger.WarnContext(ctx, "document cache tombstone failed", "document_id", doc.ID, "error", err)
		s.invalidate(ctx, doc.ID)
	}
	if !deleted {
		return apperrors.NotFound("document not found")
	}
	s.logger.InfoContext(ctx, "document soft deleted", "document_id", doc.ID, "requester_id", requester.ID)
	return nil
}

// authorizedDocument loads the document (cache first) and applies the owner
// or elevated-role rule. Unknown documents are NotFound, foreign ones AccessDenied.
func (s *DocumentService) authorizedDocument(
	ctx context.Context,
	documentID string,
	requester model.Requester,
) (*model.Document, error) {
	if requester.ID == "" {
		return nil, apperrors.Unauthorized("requester is required")
	}
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(doc.OwnerID) {
		return nil, errAccessDenied
	}
	return doc, nil
}

func (s *DocumentService) loadDocument(ctx context.Context, documentID string) (*model.Document, error) {
	cached, err := s.cache.Get(ctx, documentID)
	if errors.Is(err, core.ErrDocumentDeleted) {
		return nil, apperrors.NotFound("document not found")
	}
	if err != nil {
		s.logger.WarnContext(ctx, "document cache read failed", "document_id", documentID, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, doc); err != nil {
		s.logger.WarnContext(ctx, "document cache write failed", "document_id", documentID, "error", err)
	}
	return doc, nil
}

func (s *DocumentService) invalidate(ctx context.Context, documentID string) {
	if err := s.cache.Invalidate(ctx, documentID); err != nil {
		s.logger.WarnContext(ctx, "document cache invalidation failed", "document_id", documentID, "error", err)
	}
}

// recordAudit hands the event to the audit trail. Failures are only logged.
func (s *DocumentService) recordAudit(ctx context.Context, event model.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAsync(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event",
			"action", event.Action,
			"object_id", event.ObjectID,
			"error", err)
	}
}
