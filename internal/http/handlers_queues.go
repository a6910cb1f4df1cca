package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-docpipe/internal/core"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// QueueHandlers exposes queue observability.
type QueueHandlers struct {
	Jobs   core.JobQueue
	Logger *slog.Logger
}

type queueCountsResponse struct {
	Queue     string `json:"queue"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
}

// Counts handles GET /api/queues/{queue}/counts.
func (h *QueueHandlers) Counts(w http.ResponseWriter, r *http.Request) {
	queue := strings.TrimSpace(r.PathValue("queue"))
	if queue == "" {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("queue", "queue is required"))
		return
	}
	counts, err := h.Jobs.GetJobCounts(r.Context(), queue)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, queueCountsResponse{
		Queue:     queue,
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Delayed:   counts.Delayed,
	})
}
