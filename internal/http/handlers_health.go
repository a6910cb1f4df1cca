package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// DefaultReadyTimeout bounds each readiness probe.
const DefaultReadyTimeout = 2 * time.Second

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// Probe is one readiness dependency check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessHandlers probes every dependency concurrently.
type ReadinessHandlers struct {
	Probes  []Probe
	Timeout time.Duration
	Logger  *slog.Logger
}

type readinessResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Ready handles GET /readyz. Any failing probe answers 503.
func (h *ReadinessHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var mu sync.Mutex
	components := make(map[string]string, len(h.Probes))
	healthy := true

	// Probes never return an error to the group so one failure does not cancel the rest.
	var g errgroup.Group
	for _, p := range h.Probes {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			err := p.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				components[p.Name] = "unavailable"
				logger.WarnContext(r.Context(), "readiness probe failed", "component", p.Name, "error", err)
				return nil
			}
			components[p.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ok", Components: components}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
