package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docpipe"

// Prometheus is the Sink backed by a Prometheus registry.
type Prometheus struct {
	registry    *prometheus.Registry
	enqueued    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	cleanups    *prometheus.CounterVec
	reaped      *prometheus.CounterVec
}

var (
	_ Sink        = (*Prometheus)(nil)
	_ CleanupSink = (*Prometheus)(nil)
)

// NewPrometheus registers the job metrics on a fresh registry together with
// the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs submitted to a queue.",
		}, []string{"queue", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job state transitions recorded by workers.",
		}, []string{"queue", "transition", "result", "error_class"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler wall time per job attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"queue", "transition"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_operations_total",
			Help:      "Reaper operations by outcome.",
		}, []string{"operation", "result", "error_class"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_jobs_total",
			Help:      "Jobs requeued or deleted by the reaper.",
		}, []string{"operation"}),
	}
	reg.MustRegister(
		p.enqueued,
		p.transitions,
		p.durations,
		p.cleanups,
		p.reaped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveJob implements Sink.
func (p *Prometheus) ObserveJob(m JobMetric) {
	p.transitions.WithLabelValues(m.Queue, m.Transition, m.Result, m.ErrorClass()).Inc()
	if m.Duration > 0 {
		p.durations.WithLabelValues(m.Queue, m.Transition).Observe(m.Duration.Seconds())
	}
}

// ObserveEnqueue implements Sink.
func (p *Prometheus) ObserveEnqueue(queue, result string) {
	p.enqueued.WithLabelValues(queue, result).Inc()
}

// ObserveCleanup implements CleanupSink.
func (p *Prometheus) ObserveCleanup(m CleanupMetric) {
	p.cleanups.WithLabelValues(m.Operation, m.Result(), m.ErrorClass()).Inc()
	if m.Err == nil && m.Count > 0 {
		p.reaped.WithLabelValues(m.Operation).Add(float64(m.Count))
	}
}

// Register adds an extra collector, such as a QueueCollector.
func (p *Prometheus) Register(c prometheus.Collector) error {
	return p.registry.Register(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
