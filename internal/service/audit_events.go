package service

import (
	"context"
	"encoding/json"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

func userEvent(actorID, action, objectType, objectID string, changes any) model.AuditEvent {
	e := model.AuditEvent{
		ActorKind:  model.ActorKindUser,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
	}
	if actorID != "" {
		e.ActorID = &actorID
	}
	if changes != nil {
		if b, err := json.Marshal(changes); err == nil {
			e.Changes = b
		}
	}
	return e
}

// LoginEvent records a successful sign-in by userID.
func LoginEvent(userID string) model.AuditEvent {
	return userEvent(userID, model.AuditActionLogin, model.AuditObjectUser, userID, nil)
}

// LogoutEvent records a sign-out by userID.
func LogoutEvent(userID string) model.AuditEvent {
	return userEvent(userID, model.AuditActionLogout, model.AuditObjectUser, userID, nil)
}

// PasswordResetEvent records a password reset of userID.
func PasswordResetEvent(userID string) model.AuditEvent {
	return userEvent(userID, model.AuditActionPasswordReset, model.AuditObjectUser, userID, nil)
}

// MFAEnabledEvent records userID enabling multi-factor authentication.
func MFAEnabledEvent(userID, method string) model.AuditEvent {
	return userEvent(userID, model.AuditActionMFAEnabled, model.AuditObjectUser, userID,
		map[string]string{"method": method})
}

// DocumentUploadEvent records actorID finalizing an upload of documentID.
func DocumentUploadEvent(actorID, documentID string, docType model.DocumentType, filename string) model.AuditEvent {
	return userEvent(actorID, model.AuditActionDocumentUpload, model.AuditObjectDocument, documentID,
		map[string]string{"documentType": string(docType), "filename": filename})
}

// DocumentDownloadEvent records actorID obtaining a download URL for documentID.
func DocumentDownloadEvent(actorID, documentID string) model.AuditEvent {
	return userEvent(actorID, model.AuditActionDocumentDownload, model.AuditObjectDocument, documentID, nil)
}

// ProfileUpdateEvent records actorID changing the profile fields in changes.
func ProfileUpdateEvent(actorID, profileID string, changes map[string]any) model.AuditEvent {
	var c any
	if len(changes) > 0 {
		c = changes
	}
	return userEvent(actorID, model.AuditActionProfileUpdate, model.AuditObjectProfile, profileID, c)
}

// CaseStatusChangeEvent records actorID moving caseID from one status to another.
func CaseStatusChangeEvent(actorID, caseID, from, to string) model.AuditEvent {
	return userEvent(actorID, model.AuditActionCaseStatusChange, model.AuditObjectCase, caseID,
		map[string]string{"from": from, "to": to})
}

// LogLogin enqueues a LoginEvent.
func (l *AuditLogger) LogLogin(ctx context.Context, userID string) error {
	return l.LogAsync(ctx, LoginEvent(userID))
}

// LogLogout enqueues a LogoutEvent.
func (l *AuditLogger) LogLogout(ctx context.Context, userID string) error {
	return l.LogAsync(ctx, LogoutEvent(userID))
}

// LogPasswordReset enqueues a PasswordResetEvent.
func (l *AuditLogger) LogPasswordReset(ctx context.Context, userID string) error {
	return l.LogAsync(ctx, PasswordResetEvent(userID))
}

// LogMFAEnabled enqueues an MFAEnabledEvent.
func (l *AuditLogger) LogMFAEnabled(ctx context.Context, userID, method string) error {
	return l.LogAsync(ctx, MFAEnabledEvent(userID, method))
}

// LogDocumentUpload enqueues a DocumentUploadEvent.
func (l *AuditLogger) LogDocumentUpload(
	ctx context.Context,
	actorID, documentID string,
	docType model.DocumentType,
	filename string,
) error {
	return l.LogAsync(ctx, DocumentUploadEvent(actorID, documentID, docType, filename))
}

// LogDocumentDownload enqueues a DocumentDownloadEvent.
func (l *AuditLogger) LogDocumentDownload(ctx context.Context, actorID, documentID string) error {
	return l.LogAsync(ctx, DocumentDownloadEvent(actorID, documentID))
}

// LogProfileUpdate enqueues a ProfileUpdateEvent.
func (l *AuditLogger) LogProfileUpdate(ctx context.Context, actorID, profileID string, changes map[string]any) error {
	return l.LogAsync(ctx, ProfileUpdateEvent(actorID, profileID, changes))
}

// LogCaseStatusChange enqueues a CaseStatusChangeEvent.
func (l *AuditLogger) LogCaseStatusChange(ctx context.Context, actorID, caseID, from, to string) error {
	return l.LogAsync(ctx, CaseStatusChangeEvent(actorID, caseID, from, to))
}
