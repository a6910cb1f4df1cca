package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/adapters/jobrunner"
	"github.com/target/mmk-docpipe/internal/adapters/storage"
	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/data"
	domaindoc "github.com/target/mmk-docpipe/internal/domain/document"
	domainjob "github.com/target/mmk-docpipe/internal/domain/job"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/observability/metrics"
	"github.com/target/mmk-docpipe/internal/ports"
	"github.com/target/mmk-docpipe/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs       *service.JobService
	Manager    *jobrunner.Manager
	Documents  *service.DocumentService
	Audit      *service.AuditLogger
	ScanWorker *service.ScanWorker
	Storage    *storage.S3Storage
	Verifier   ports.RequesterVerifier
	// Cache is nil when Redis is disabled.
	Cache         *data.RedisCacheRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Prometheus is nil when metrics are disabled.
	Prometheus    *metrics.Prometheus
	MetricsSink   metrics.Sink
	CleanupSink   metrics.CleanupSink
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	JobRepo      *data.JobRepo
	DocumentRepo *data.DocumentRepo
	AuditRepo    *data.AuditRepo
	CacheRepo    *data.RedisCacheRepo
}

// buildObservability configures the Prometheus registry. The sinks stay nil
// interfaces when metrics are disabled.
func buildObservability(cfg config.ObservabilityConfig) ObservabilityContainer {
	obs := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.Enabled {
		return obs
	}
	prom := metrics.NewPrometheus()
	obs.Prometheus = prom
	obs.MetricsSink = prom
	obs.CleanupSink = prom
	return obs
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(
	db *sql.DB,
	redisClient redis.UniversalClient,
	cacheCfg config.CacheConfig,
	logger *slog.Logger,
) *serviceRepositories {
	repos := &serviceRepositories{
		JobRepo:      data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		DocumentRepo: data.NewDocumentRepo(db),
		AuditRepo:    data.NewAuditRepo(db),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(data.RedisCacheOptions{
			Client: redisClient,
			Prefix: cacheCfg.KeyPrefix,
		})
	}
	return repos
}

func newJobService(
	repo *data.JobRepo,
	cfg config.QueueConfig,
	obs ObservabilityContainer,
	logger *slog.Logger,
) (*service.JobService, error) {
	schemas, err := domainjob.NewSchemaRegistry()
	if err != nil {
		return nil, fmt.Errorf("load job payload schemas: %w", err)
	}
	return service.NewJobService(service.JobServiceOptions{
		Repo:            repo,
		DefaultLease:    cfg.DefaultLease,
		DefaultAttempts: cfg.DefaultAttempts,
		Schemas:         schemas,
		Metrics:         obs.MetricsSink,
		NotifierOptions: domainjob.NotifierOptions{
			WaitWindow: cfg.NotifyWaitWindow,
			RetryDelay: cfg.ReserveRetryDelay,
		},
		Logger: logger,
	})
}

func newDocumentCache(repo *data.RedisCacheRepo, cfg config.CacheConfig) *core.DocumentCache {
	if repo == nil {
		return nil
	}
	return core.NewDocumentCache(core.DocumentCacheOptions{Cache: repo, TTL: cfg.DocumentTTL})
}

// NewServices wires repositories, adapters and services. No goroutines are
// started here; RunServicesWithShutdown owns the runtime.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(cfg.Observability)
	repos := buildRepositories(deps.DB, deps.RedisClient, cfg.Cache, logger)

	jobs, err := newJobService(repos.JobRepo, cfg.Queue, obs, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	manager, err := jobrunner.NewManager(jobrunner.ManagerOptions{
		Jobs:              jobs,
		Metrics:           obs.MetricsSink,
		Logger:            logger,
		ReserveRetryDelay: cfg.Queue.ReserveRetryDelay,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job manager: %w", err)
	}

	objects, err := BuildStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	audit, err := service.NewAuditLogger(service.AuditLoggerOptions{
		Repo:   repos.AuditRepo,
		Queue:  manager,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create audit logger: %w", err)
	}

	documents, err := service.NewDocumentService(service.DocumentServiceOptions{
		Repo:           repos.DocumentRepo,
		Storage:        objects,
		Queue:          manager,
		Audit:          audit,
		Cache:          newDocumentCache(repos.CacheRepo, cfg.Cache),
		UploadRules:    domaindoc.NewUploadRules(cfg.Upload.AllowedMimeTypes, cfg.Upload.MaxSizeBytes),
		UploadURLTTL:   cfg.Storage.UploadURLTTL,
		DownloadURLTTL: cfg.Storage.DownloadURLTTL,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create document service: %w", err)
	}

	container := ServiceContainer{
		Jobs:          jobs,
		Manager:       manager,
		Documents:     documents,
		Audit:         audit,
		Storage:       objects,
		Cache:         repos.CacheRepo,
		Observability: obs,
	}

	if cfg.IsScanWorkerEnabled() {
		scn, err := BuildScanner(cfg.Scanner, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
		container.ScanWorker, err = service.NewScanWorker(service.ScanWorkerOptions{
			Storage:   objects,
			Scanner:   scn,
			Documents: documents,
			Logger:    logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create scan worker: %w", err)
		}
	}

	if cfg.IsHTTPServerEnabled() {
		container.Verifier, err = BuildVerifier(cfg.Auth, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
	}

	if err := registerWorkers(&container, cfg); err != nil {
		return ServiceContainer{}, err
	}
	if err := registerQueueCollector(&container, logger); err != nil {
		return ServiceContainer{}, err
	}

	return container, nil
}

// registerWorkers attaches queue handlers for the enabled worker modes.
func registerWorkers(c *ServiceContainer, cfg *config.AppConfig) error {
	if c.ScanWorker != nil {
		if _, err := c.Manager.RegisterWorker(model.QueueDocumentScan, c.ScanWorker.Handle, model.WorkerOptions{
			Concurrency: cfg.ScanWorker.Concurrency,
			Lease:       cfg.ScanWorker.JobLease,
		}); err != nil {
			return err
		}
	}
	if cfg.IsAuditWorkerEnabled() {
		if _, err := c.Manager.RegisterWorker(model.QueueAuditEvents, c.Audit.Handle, model.WorkerOptions{
			Concurrency: cfg.AuditWorker.Concurrency,
			Lease:       cfg.AuditWorker.JobLease,
		}); err != nil {
			return err
		}
	}
	return nil
}

func registerQueueCollector(c *ServiceContainer, logger *slog.Logger) error {
	prom := c.Observability.Prometheus
	if prom == nil || len(c.Observability.MetricsConfig.Queues) == 0 {
		return nil
	}
	collector := metrics.NewQueueCollector(metrics.QueueCollectorOptions{
		Counts: c.Jobs.Counts,
		Queues: c.Observability.MetricsConfig.Queues,
		Logger: logger,
	})
	if err := prom.Register(collector); err != nil {
		return fmt.Errorf("register queue collector: %w", err)
	}
	return nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component. It runs when
// any of its modes is enabled.
type backgroundService struct {
	modes []config.ServiceMode
	name  string
	start func(context.Context) error
}

func (s backgroundService) enabled(modes map[config.ServiceMode]bool) bool {
	for _, m := range s.modes {
		if modes[m] {
			return true
		}
	}
	return false
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !descriptor.enabled(deps.enabledServices) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}

	return handles
}

func newJobManagerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		modes: []config.ServiceMode{config.ServiceModeScanWorker, config.ServiceModeAuditWorker},
		name:  "job manager",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Manager == nil {
				return nil
			}
			return deps.cfg.Services.Manager.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		modes: []config.ServiceMode{config.ServiceModeReaper},
		name:  "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.CleanupSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newJobManagerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return runServices(cfg, quit)
}

func runServices(cfg *ServiceOrchestrationConfig, quit <-chan os.Signal) error {
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		quit:            quit,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	quit            <-chan os.Signal
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops intake first: the HTTP server drains, then workers are
// cancelled and awaited. The queue listeners stop when the job manager returns.
func gracefulStop(cfg shutdownConfig) error {
	var httpErr error
	if cfg.httpServer != nil {
		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		})
	}

	cfg.cancel()
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return httpErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
