package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScanWorker runs the document-scan queue worker.
	ServiceModeScanWorker ServiceMode = "scan-worker"
	// ServiceModeAuditWorker runs the audit-events queue worker.
	ServiceModeAuditWorker ServiceMode = "audit-worker"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeScanWorker,
		ServiceModeAuditWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScanWorker, ServiceModeAuditWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, scan-worker, audit-worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains job queue runtime configuration.
type QueueConfig struct {
	// DefaultLease is the lease on reserved jobs when a worker sets none.
	DefaultLease time.Duration `env:"QUEUE_DEFAULT_LEASE" envDefault:"30s"`

	// DefaultAttempts applies when the producer sets no attempt budget.
	DefaultAttempts int `env:"QUEUE_DEFAULT_ATTEMPTS" envDefault:"3"`

	// NotifyWaitWindow bounds a single LISTEN wait so delayed jobs surface without a NOTIFY.
	NotifyWaitWindow time.Duration `env:"QUEUE_NOTIFY_WAIT_WINDOW" envDefault:"5s"`

	// ReserveRetryDelay is the pause after a failed reservation.
	ReserveRetryDelay time.Duration `env:"QUEUE_RESERVE_RETRY_DELAY" envDefault:"1s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.DefaultLease < 5*time.Second {
		q.DefaultLease = 5 * time.Second
	}
	if q.DefaultAttempts < 1 {
		q.DefaultAttempts = 1
	}
	if q.NotifyWaitWindow < 100*time.Millisecond {
		q.NotifyWaitWindow = 100 * time.Millisecond
	}
	if q.ReserveRetryDelay <= 0 {
		q.ReserveRetryDelay = time.Second
	}
}

// ScanWorkerConfig contains document-scan worker configuration.
type ScanWorkerConfig struct {
	// Concurrency is the number of scans processed in parallel.
	Concurrency int `env:"SCAN_WORKER_CONCURRENCY" envDefault:"5"`

	// JobLease is the lease on a scan job; heartbeats renew it during long scans.
	JobLease time.Duration `env:"SCAN_WORKER_JOB_LEASE" envDefault:"2m"`
}

// Sanitize applies guardrails to scan worker configuration values.
func (s *ScanWorkerConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = model.DefaultConcurrency
	}
	if s.JobLease < 5*time.Second {
		s.JobLease = 5 * time.Second
	}
}

// AuditWorkerConfig contains audit-events worker configuration.
type AuditWorkerConfig struct {
	// Concurrency is the number of audit writes processed in parallel.
	Concurrency int `env:"AUDIT_WORKER_CONCURRENCY" envDefault:"10"`

	// JobLease is the lease on an audit write job.
	JobLease time.Duration `env:"AUDIT_WORKER_JOB_LEASE" envDefault:"30s"`
}

// Sanitize applies guardrails to audit worker configuration values.
func (a *AuditWorkerConfig) Sanitize() {
	if a.Concurrency < 1 {
		a.Concurrency = 10
	}
	if a.JobLease < 5*time.Second {
		a.JobLease = 5 * time.Second
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	// Failed jobs are never deleted so they stay inspectable.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
