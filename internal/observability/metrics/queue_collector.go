package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// CountsFunc reads the current job counts of a queue.
type CountsFunc func(ctx context.Context, queue string) (*model.JobCounts, error)

// QueueCollectorOptions configures NewQueueCollector.
type QueueCollectorOptions struct {
	Counts  CountsFunc
	Queues  []string
	Timeout time.Duration // per-scrape budget; defaults to 2s
	Logger  *slog.Logger
}

// QueueCollector exports job counts per queue and state at scrape time.
type QueueCollector struct {
	counts  CountsFunc
	queues  []string
	timeout time.Duration
	logger  *slog.Logger
	desc    *prometheus.Desc
}

var _ prometheus.Collector = (*QueueCollector)(nil)

// NewQueueCollector constructs a QueueCollector.
func NewQueueCollector(opts QueueCollectorOptions) *QueueCollector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueCollector{
		counts:  opts.Counts,
		queues:  append([]string(nil), opts.Queues...),
		timeout: timeout,
		logger:  logger.With("component", "queue_collector"),
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_jobs"),
			"Jobs per queue and state.",
			[]string{"queue", "state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector. Queues whose counts cannot be read
// are skipped for this scrape.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	if c.counts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for _, q := range c.queues {
		counts, err := c.counts(ctx, q)
		if err != nil {
			c.logger.WarnContext(ctx, "read queue counts", "queue", q, "error", err)
			continue
		}
		for state, v := range map[model.JobState]int{
			model.JobStateWaiting:   counts.Waiting,
			model.JobStateActive:    counts.Active,
			model.JobStateCompleted: counts.Completed,
			model.JobStateFailed:    counts.Failed,
			model.JobStateDelayed:   counts.Delayed,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(v), q, string(state))
		}
	}
}
