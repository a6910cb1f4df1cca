package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-docpipe/config"
	httpx "github.com/target/mmk-docpipe/internal/http"
)

var errQueueUnhealthy = errors.New("job queue health check failed")

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
	// ErrCh receives listener failures; nil drops them after logging.
	ErrCh chan<- error
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(buildRouterServices(cfg, appCfg, logger))
	return startServer(serverParams{
		logger:  logger,
		handler: handler,
		http:    appCfg.HTTP,
		errCh:   cfg.ErrCh,
	})
}

func buildRouterServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		Documents:    cfg.Services.Documents,
		Audit:        cfg.Services.Audit,
		Verifier:     cfg.Services.Verifier,
		Probes:       buildProbes(cfg.Services, cfg.DB),
		ReadyTimeout: appCfg.HTTP.ReadyTimeout,
		MaxBodyBytes: appCfg.HTTP.MaxBodyBytes,
		Logger:       logger,
	}
	// Assigning a nil *Manager would produce a non-nil interface.
	if cfg.Services.Manager != nil {
		services.Jobs = cfg.Services.Manager
	}
	if prom := cfg.Services.Observability.Prometheus; prom != nil {
		services.Metrics = prom.Handler()
		services.MetricsPath = cfg.Services.Observability.MetricsConfig.Path
	}
	return services
}

// buildProbes lists the readiness checks for the wired dependencies.
func buildProbes(c ServiceContainer, db *sql.DB) []httpx.Probe {
	var probes []httpx.Probe
	if db != nil {
		probes = append(probes, httpx.Probe{Name: "database", Check: db.PingContext})
	}
	if c.Manager != nil {
		manager := c.Manager
		probes = append(probes, httpx.Probe{Name: "queue", Check: func(ctx context.Context) error {
			if !manager.HealthCheck(ctx) {
				return errQueueUnhealthy
			}
			return nil
		}})
	}
	if c.Storage != nil {
		probes = append(probes, httpx.Probe{Name: "storage", Check: c.Storage.Ping})
	}
	if c.Cache != nil {
		probes = append(probes, httpx.Probe{Name: "cache", Check: c.Cache.Health})
	}
	return probes
}

type serverParams struct {
	logger  *slog.Logger
	handler http.Handler
	http    config.HTTPConfig
	errCh   chan<- error
}

func startServer(p serverParams) *http.Server {
	addr := p.http.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           p.handler,
		ReadHeaderTimeout: p.http.ReadHeaderTimeout,
		ReadTimeout:       p.http.ReadTimeout,
		WriteTimeout:      p.http.WriteTimeout,
		IdleTimeout:       p.http.IdleTimeout,
	}

	go func() {
		p.logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("HTTP server failed", "error", err)
			if p.errCh != nil {
				select {
				case p.errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	// Timeout bounds the drain of in-flight requests; zero means 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
