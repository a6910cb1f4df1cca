package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/service"
)

// AuditHandlers serves audit trail queries.
type AuditHandlers struct {
	Svc    *service.AuditLogger
	Logger *slog.Logger
}

// Query handles GET /api/audit-events.
func (h *AuditHandlers) Query(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageRequest(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	q := r.URL.Query()
	res, err := h.Svc.Query(r.Context(), model.AuditQuery{
		ActorID:    strings.TrimSpace(q.Get("actor_id")),
		ObjectType: strings.TrimSpace(q.Get("object_type")),
		ObjectID:   strings.TrimSpace(q.Get("object_id")),
		Action:     strings.TrimSpace(q.Get("action")),
		From:       from,
		To:         to,
		Page:       page,
	})
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
