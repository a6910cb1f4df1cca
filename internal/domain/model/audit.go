package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ActorKind classifies who performed an audited action.
type ActorKind string

const (
	ActorKindUser        ActorKind = "user"
	ActorKindSystem      ActorKind = "system"
	ActorKindIntegration ActorKind = "integration"
)

// Valid returns true if the actor kind is known.
func (k ActorKind) Valid() bool {
	return k == ActorKindUser || k == ActorKindSystem || k == ActorKindIntegration
}

// Audit actions emitted by the convenience constructors.
const (
	AuditActionLogin            = "AUTH_LOGIN"
	AuditActionLogout           = "AUTH_LOGOUT"
	AuditActionPasswordReset    = "AUTH_PASSWORD_RESET"
	AuditActionMFAEnabled       = "AUTH_MFA_ENABLED"
	AuditActionDocumentUpload   = "DOCUMENT_UPLOAD"
	AuditActionDocumentDownload = "DOCUMENT_DOWNLOAD"
	AuditActionProfileUpdate    = "PROFILE_UPDATE"
	AuditActionCaseStatusChange = "CASE_STATUS_CHANGE"
)

// Audited object types.
const (
	AuditObjectUser     = "user"
	AuditObjectDocument = "document"
	AuditObjectProfile  = "profile"
	AuditObjectCase     = "case"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	ID         string          `json:"id"                   db:"id"`
	ActorID    *string         `json:"actor_id,omitempty"   db:"actor_id"`
	ActorKind  ActorKind       `json:"actor_kind"           db:"actor_kind"`
	Action     string          `json:"action"               db:"action"`
	ObjectType string          `json:"object_type"          db:"object_type"`
	ObjectID   string          `json:"object_id"            db:"object_id"`
	Changes    json.RawMessage `json:"changes,omitempty"    db:"changes"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	RequestID  string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp  time.Time       `json:"timestamp"            db:"timestamp"`
}

// Validate checks the fields every audit event must carry.
func (e *AuditEvent) Validate() error {
	if !e.ActorKind.Valid() {
		return errors.New("invalid actor kind")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(e.ObjectType) == "" {
		return errors.New("object type is required")
	}
	if strings.TrimSpace(e.ObjectID) == "" {
		return errors.New("object id is required")
	}
	if len(e.Changes) > 0 && !json.Valid(e.Changes) {
		return errors.New("changes must be valid JSON")
	}
	return nil
}

// RequestInfo carries the transport context attached to audit events.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// Apply copies the request context onto the event.
func (ri RequestInfo) Apply(e *AuditEvent) {
	e.IPAddress = ri.IPAddress
	e.UserAgent = ri.UserAgent
	e.RequestID = ri.RequestID
}

// AuditQuery filters audit events. Zero-valued fields do not filter.
type AuditQuery struct {
	ActorID    string
	ObjectType string
	ObjectID   string
	// Action matches as a case-insensitive substring.
	Action string
	From   *time.Time
	To     *time.Time
	Page   PageRequest
}

// Validate rejects inverted time ranges.
func (q *AuditQuery) Validate() error {
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return errors.New("from must not be after to")
	}
	return nil
}

// AuditPage is a cursor page of audit events.
type AuditPage = Page[AuditEvent]
