package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/ports"
	"github.com/target/mmk-docpipe/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Documents *service.DocumentService
	Audit     *service.AuditLogger
	Jobs      core.JobQueue
	Verifier  ports.RequesterVerifier

	// Readiness probes for GET /readyz.
	Probes       []Probe
	ReadyTimeout time.Duration

	// Optional: Prometheus exposition mounted at MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router with the standard middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// GET patterns also match HEAD.
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))

	ready := &ReadinessHandlers{Probes: services.Probes, Timeout: services.ReadyTimeout, Logger: logger}
	mux.HandleFunc("GET /readyz", ready.Ready)

	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics)
	}

	authn := RequireRequester(services.Verifier, logger)
	if services.Documents != nil {
		registerDocumentRoutes(mux, &DocumentHandlers{Svc: services.Documents, Logger: logger}, authn)
	}
	if services.Audit != nil {
		h := &AuditHandlers{Svc: services.Audit, Logger: logger}
		mux.Handle("GET /api/audit-events", Chain(http.HandlerFunc(h.Query), authn, RequireElevated()))
	}
	if services.Jobs != nil {
		h := &QueueHandlers{Jobs: services.Jobs, Logger: logger}
		mux.Handle("GET /api/queues/{queue}/counts", Chain(http.HandlerFunc(h.Counts), authn, RequireElevated()))
	}

	return Chain(mux,
		RequestContext(),
		Logging(logger),
		Recover(logger),
		LimitBody(services.MaxBodyBytes),
	)
}

func registerDocumentRoutes(mux *http.ServeMux, h *DocumentHandlers, authn func(http.Handler) http.Handler) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /api/documents/uploads", h.AuthorizeUpload},
		{"POST /api/documents", h.FinalizeUpload},
		{"GET /api/documents", h.List},
		{"GET /api/documents/{id}", h.Get},
		{"GET /api/documents/{id}/download", h.Download},
		{"DELETE /api/documents/{id}", h.Delete},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, authn(rt.handler))
	}
}
