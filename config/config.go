package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Requester token verification
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, queue and worker configuration
//   - storage.go: Object storage, scanner and upload rules
type AppConfig struct {
	// IsDev enables development defaults such as text logs.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,scan-worker,audit-worker,reaper"`

	// Queue runtime configuration
	Queue QueueConfig

	// Worker configuration
	ScanWorker  ScanWorkerConfig
	AuditWorker AuditWorkerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Document pipeline collaborators
	Storage StorageConfig `envPrefix:"STORAGE_"`
	Scanner ScannerConfig `envPrefix:"SCANNER_"`
	Upload  UploadConfig  `envPrefix:"UPLOAD_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Postgres.Sanitize()
	c.Cache.Sanitize()

	c.Queue.Sanitize()
	c.ScanWorker.Sanitize()
	c.AuditWorker.Sanitize()
	c.Reaper.Sanitize()

	c.Storage.Sanitize()
	c.Scanner.Sanitize()
	c.Upload.Sanitize()
	c.Auth.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.isEnabled(ServiceModeHTTP) }

// IsScanWorkerEnabled returns true if the scan worker is enabled.
func (c *AppConfig) IsScanWorkerEnabled() bool { return c.isEnabled(ServiceModeScanWorker) }

// IsAuditWorkerEnabled returns true if the audit writer is enabled.
func (c *AppConfig) IsAuditWorkerEnabled() bool { return c.isEnabled(ServiceModeAuditWorker) }

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.isEnabled(ServiceModeReaper) }
