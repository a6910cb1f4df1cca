package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
	"github.com/target/mmk-docpipe/internal/service"
)

// DocumentHandlers serves the document pipeline endpoints.
type DocumentHandlers struct {
	Svc    *service.DocumentService
	Logger *slog.Logger
}

// AuthorizeUpload handles POST /api/documents/uploads.
func (h *DocumentHandlers) AuthorizeUpload(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	var req service.AuthorizeUploadRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.RequesterID = requester.ID

	auth, err := h.Svc.AuthorizeUpload(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, auth)
}

// FinalizeUpload handles POST /api/documents.
func (h *DocumentHandlers) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	var req service.FinalizeUploadRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Requester = requester

	doc, err := h.Svc.FinalizeUpload(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Location", "/api/documents/"+doc.ID)
	WriteJSON(w, http.StatusCreated, doc)
}

// List handles GET /api/documents.
func (h *DocumentHandlers) List(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	filter, err := parseDocumentFilter(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	res, err := h.Svc.ListOwned(r.Context(), service.ListOwnedRequest{
		RequesterID: requester.ID,
		Page:        page,
		Filter:      filter,
	})
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Get handles GET /api/documents/{id}.
func (h *DocumentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.GetMetadata(r.Context(), r.PathValue("id"), requester)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

// Download handles GET /api/documents/{id}/download.
func (h *DocumentHandlers) Download(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	url, err := h.Svc.GetDownloadURL(r.Context(), r.PathValue("id"), requester)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, url)
}

// Delete handles DELETE /api/documents/{id}.
func (h *DocumentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	if err := h.Svc.SoftDelete(r.Context(), r.PathValue("id"), requester); err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandlers) requester(w http.ResponseWriter, r *http.Request) (model.Requester, bool) {
	requester, ok := requesterFrom(r)
	if !ok {
		WriteServiceError(w, r, h.Logger, apperrors.Unauthorized("authentication required"))
	}
	return requester, ok
}
