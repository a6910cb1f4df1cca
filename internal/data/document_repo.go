package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/data/pgxutil"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// DocumentRepo persists document metadata.
type DocumentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDocumentRepo creates a DocumentRepo using the real clock.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewDocumentRepoWithTimeProvider creates a DocumentRepo with a custom clock (useful for tests).
func NewDocumentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: tp}
}

const documentColumns = `
  id, owner_id, owner_kind, document_type, filename, mime_type, size_bytes,
  storage_key, content_hash, scan_status, scan_completed_at, metadata,
  deleted_at, created_at, updated_at`

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d                          model.Document
		metadata                   []byte
		scanCompletedAt, deletedAt sql.NullTime
	)
	if err := s.Scan(
		&d.ID, &d.OwnerID, &d.OwnerKind, &d.DocumentType, &d.Filename, &d.MimeType, &d.SizeBytes,
		&d.StorageKey, &d.ContentHash, &d.ScanStatus, &scanCompletedAt, &metadata,
		&deletedAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Metadata = cloneJSON(metadata)
	d.ScanCompletedAt = nullableTime(scanCompletedAt)
	d.DeletedAt = nullableTime(deletedAt)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// Create inserts a pending document.
func (r *DocumentRepo) Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	if req == nil {
		return nil, errors.New("create document request is required")
	}
	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	now := r.timeProvider.Now().UTC()

	var out *model.Document
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO documents (
				owner_id, owner_kind, document_type, filename, mime_type, size_bytes,
				storage_key, content_hash, scan_status, metadata, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $10, $10)
			RETURNING `+documentColumns,
			req.OwnerID,
			string(req.OwnerKind),
			string(req.DocumentType),
			req.Filename,
			req.MimeType,
			req.SizeBytes,
			req.StorageKey,
			req.ContentHash,
			[]byte(metadata),
			now,
		)
		var err error
		out, err = scanDocument(row)
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert document: %w", err))
	}
	return out, nil
}

// GetByID returns a live document.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrDocumentNotFound
	}
	d, err := scanDocument(r.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get document: %w", err))
	}
	return d, nil
}

// GetByStorageKey returns the live document recorded for key.
func (r *DocumentRepo) GetByStorageKey(ctx context.Context, key string) (*model.Document, error) {
	d, err := scanDocument(r.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE storage_key = $1 AND deleted_at IS NULL`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get document by storage key: %w", err))
	}
	return d, nil
}

// CompleteScan records the verdict and merges the scan result under
// metadata.scanResult in one statement, only while the document is pending.
func (r *DocumentRepo) CompleteScan(ctx context.Context, params core.CompleteScanParams) (bool, error) {
	result := params.Result
	if len(result) == 0 {
		result = []byte(`{}`)
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE documents
		SET scan_status = $2,
		    scan_completed_at = $3,
		    metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('scanResult', $4::jsonb),
		    updated_at = $3
		WHERE id = $1 AND scan_status = 'pending'
	`, params.DocumentID, string(params.Status), now, string(result))
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("complete scan: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete scan rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByOwner pages an owner's live documents newest first. The cursor is a
// document id resolved to its (created_at, id) position inside the query.
func (r *DocumentRepo) ListByOwner(ctx context.Context, opts model.DocumentListOptions) (*model.DocumentPage, error) {
	limit := opts.Page.EffectiveLimit()

	var w whereBuilder
	w.add("owner_id = ?", opts.OwnerID)
	w.add("deleted_at IS NULL")
	w.addIf(opts.Filter.DocumentType != nil, "document_type = ?", derefString(opts.Filter.DocumentType))
	w.addIf(opts.Filter.ScanStatus != nil, "scan_status = ?", derefString(opts.Filter.ScanStatus))
	if opts.Page.Cursor != "" {
		if _, err := uuid.Parse(opts.Page.Cursor); err != nil {
			return nil, apperrors.ValidationField("cursor", "cursor is invalid")
		}
		w.add("(created_at, id) < (SELECT created_at, id FROM documents WHERE id = ?)", opts.Page.Cursor)
	}

	query := `SELECT ` + documentColumns + ` FROM documents ` + w.sql() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + w.next(limit+1)

	rows, err := r.DB.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list documents: %w", err))
	}
	defer rows.Close()

	var docs []model.DocumentSummary
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return model.NewPage(docs, limit, func(d model.DocumentSummary) string { return d.ID }), nil
}

// SoftDelete hides a document from reads. The row and object are retained.
func (r *DocumentRepo) SoftDelete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE documents SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("soft delete document: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows affected: %w", err)
	}
	return n > 0, nil
}

// Ping checks metadata-store connectivity.
func (r *DocumentRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func derefString[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

var _ core.DocumentRepository = (*DocumentRepo)(nil)
