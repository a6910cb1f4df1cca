package model

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"
)

// ScanStatus is the antivirus verdict lifecycle of a document.
type ScanStatus string

const (
	ScanStatusPending  ScanStatus = "pending"
	ScanStatusClean    ScanStatus = "clean"
	ScanStatusInfected ScanStatus = "infected"
)

// Valid returns true if the ScanStatus is known.
func (s ScanStatus) Valid() bool {
	return s == ScanStatusPending || s == ScanStatusClean || s == ScanStatusInfected
}

// Terminal reports whether the status is a final scan verdict.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusClean || s == ScanStatusInfected
}

// OwnerKind classifies the party that owns a document.
type OwnerKind string

const (
	OwnerKindPatient    OwnerKind = "patient"
	OwnerKindPrescriber OwnerKind = "prescriber"
	OwnerKindStaff      OwnerKind = "staff"
)

// Role is the requester's role as asserted by the identity provider.
type Role string

const (
	RolePatient    Role = "patient"
	RolePrescriber Role = "prescriber"
	RoleStaff      Role = "staff"
	RoleOperations Role = "operations"
	RoleBilling    Role = "billing"
	RoleCompliance Role = "compliance"
	RoleAdmin      Role = "admin"
)

var elevatedRoles = []Role{RoleOperations, RoleBilling, RoleCompliance, RoleAdmin}

// Elevated reports whether the role may act on documents it does not own.
func (r Role) Elevated() bool {
	return slices.Contains(elevatedRoles, r)
}

// Valid returns true if the role is known.
func (r Role) Valid() bool {
	return r == RolePatient || r == RolePrescriber || r == RoleStaff || r.Elevated()
}

// OwnerKind maps a requester role to the owner kind recorded on new documents.
func (r Role) OwnerKind() OwnerKind {
	switch r {
	case RolePatient:
		return OwnerKindPatient
	case RolePrescriber:
		return OwnerKindPrescriber
	default:
		return OwnerKindStaff
	}
}

// DocumentType is the business category of an uploaded document.
type DocumentType string

const (
	DocumentTypePrescription    DocumentType = "PRESCRIPTION"
	DocumentTypeInsuranceCard   DocumentType = "INSURANCE_CARD"
	DocumentTypeMedicalRecord   DocumentType = "MEDICAL_RECORD"
	DocumentTypeQuote           DocumentType = "QUOTE"
	DocumentTypeClaimForm       DocumentType = "CLAIM_FORM"
	DocumentTypeProofOfDelivery DocumentType = "PROOF_OF_DELIVERY"
	DocumentTypeOther           DocumentType = "OTHER"
)

var documentTypes = []DocumentType{
	DocumentTypePrescription,
	DocumentTypeInsuranceCard,
	DocumentTypeMedicalRecord,
	DocumentTypeQuote,
	DocumentTypeClaimForm,
	DocumentTypeProofOfDelivery,
	DocumentTypeOther,
}

// Valid returns true if the document type is known.
func (t DocumentType) Valid() bool {
	return slices.Contains(documentTypes, t)
}

// ParseDocumentType accepts any casing ("prescription", "Prescription").
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.New("unknown document type")
	}
	return t, nil
}

// Document is the persisted metadata record of an uploaded file.
type Document struct {
	ID              string          `json:"id"                          db:"id"`
	OwnerID         string          `json:"owner_id"                    db:"owner_id"`
	OwnerKind       OwnerKind       `json:"owner_kind"                  db:"owner_kind"`
	DocumentType    DocumentType    `json:"document_type"               db:"document_type"`
	Filename        string          `json:"filename"                    db:"filename"`
	MimeType        string          `json:"mime_type"                   db:"mime_type"`
	SizeBytes       int64           `json:"size_bytes"                  db:"size_bytes"`
	StorageKey      string          `json:"storage_key"                 db:"storage_key"`
	ContentHash     string          `json:"content_hash"                db:"content_hash"`
	ScanStatus      ScanStatus      `json:"scan_status"                 db:"scan_status"`
	ScanCompletedAt *time.Time      `json:"scan_completed_at,omitempty" db:"scan_completed_at"`
	Metadata        json.RawMessage `json:"metadata"                    db:"metadata"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"        db:"deleted_at"`
	CreatedAt       time.Time       `json:"created_at"                  db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"                  db:"updated_at"`
}

// Summary projects the caller-facing view of the document.
func (d *Document) Summary() *DocumentSummary {
	return &DocumentSummary{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		OwnerKind:       d.OwnerKind,
		DocumentType:    d.DocumentType,
		Filename:        d.Filename,
		MimeType:        d.MimeType,
		SizeBytes:       d.SizeBytes,
		ScanStatus:      d.ScanStatus,
		ScanCompletedAt: d.ScanCompletedAt,
		Metadata:        d.Metadata,
		CreatedAt:       d.CreatedAt,
	}
}

// DocumentSummary is the document view returned to callers; it omits the storage key.
type DocumentSummary struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	OwnerKind       OwnerKind       `json:"owner_kind"`
	DocumentType    DocumentType    `json:"document_type"`
	Filename        string          `json:"filename"`
	MimeType        string          `json:"mime_type"`
	SizeBytes       int64           `json:"size_bytes"`
	ScanStatus      ScanStatus      `json:"scan_status"`
	ScanCompletedAt *time.Time      `json:"scan_completed_at,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Requester is the verified identity acting on a request.
type Requester struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanAccess reports whether the requester may read or modify a document owned by ownerID.
func (r Requester) CanAccess(ownerID string) bool {
	return r.ID != "" && (r.ID == ownerID || r.Role.Elevated())
}

// CreateDocumentRequest is the row inserted by FinalizeUpload.
type CreateDocumentRequest struct {
	OwnerID      string
	OwnerKind    OwnerKind
	DocumentType DocumentType
	Filename     string
	MimeType     string
	SizeBytes    int64
	StorageKey   string
	ContentHash  string
	Metadata     json.RawMessage
}

// UploadAuthorization is the result of AuthorizeUpload.
type UploadAuthorization struct {
	UploadURL  string `json:"upload_url"`
	StorageKey string `json:"storage_key"`
	ExpiresIn  int    `json:"expires_in"`
}

// DownloadURL is the result of GetDownloadURL.
type DownloadURL struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// DocumentFilter narrows ListOwned results.
type DocumentFilter struct {
	DocumentType *DocumentType
	ScanStatus   *ScanStatus
}

// DocumentListOptions are the repository-level list parameters.
type DocumentListOptions struct {
	OwnerID string
	Filter  DocumentFilter
	Page    PageRequest
}

// DocumentPage is a cursor page of document summaries.
type DocumentPage = Page[DocumentSummary]
