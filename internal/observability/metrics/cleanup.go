package metrics

import obserrors "github.com/target/mmk-docpipe/internal/observability/errors"

// CleanupMetric captures one reaper operation.
type CleanupMetric struct {
	Operation string
	Count     int64
	Err       error
}

// Result derives the result label: error, noop when nothing was touched, else success.
func (m CleanupMetric) Result() string {
	switch {
	case m.Err != nil:
		return ResultError
	case m.Count == 0:
		return ResultNoop
	default:
		return ResultSuccess
	}
}

// ErrorClass returns the normalised error class for failed operations.
func (m CleanupMetric) ErrorClass() string {
	if m.Err == nil {
		return ""
	}
	return obserrors.Classify(m.Err)
}

// CleanupSink receives reaper observations.
type CleanupSink interface {
	ObserveCleanup(m CleanupMetric)
}

// EmitCleanup records a reaper operation. A nil sink is a no-op.
func EmitCleanup(sink CleanupSink, m CleanupMetric) {
	if sink == nil {
		return
	}
	sink.ObserveCleanup(m)
}
