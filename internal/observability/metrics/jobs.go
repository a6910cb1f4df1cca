package metrics

import (
	"time"

	obserrors "github.com/target/mmk-docpipe/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job transitions recorded by the worker runtime.
const (
	TransitionCompleted = "completed"
	TransitionRetried   = "retried"
	TransitionFailed    = "failed"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Queue      string
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// ErrorClass returns the normalised error class for error results.
func (m JobMetric) ErrorClass() string {
	if m.Err == nil || m.Result != ResultError {
		return ""
	}
	return obserrors.Classify(m.Err)
}

// Sink receives job lifecycle and enqueue observations.
type Sink interface {
	ObserveJob(m JobMetric)
	ObserveEnqueue(queue, result string)
}

// EmitJobLifecycle emits standardised job lifecycle metrics. A nil sink is a no-op.
func EmitJobLifecycle(sink Sink, in JobMetric) {
	if sink == nil {
		return
	}
	sink.ObserveJob(in)
}

// EmitEnqueue records an enqueue attempt. A nil sink is a no-op.
func EmitEnqueue(sink Sink, queue string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.ObserveEnqueue(queue, result)
}
