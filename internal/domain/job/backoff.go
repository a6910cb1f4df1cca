package job

import (
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// MaxRetryDelay caps the computed retry delay.
const MaxRetryDelay = 24 * time.Hour

// RetryDelay returns how long to wait before the next attempt after
// attemptsMade attempts have failed. Fixed policies always wait Delay;
// exponential policies wait Delay × 2^(attemptsMade-1).
func RetryDelay(b model.Backoff, attemptsMade int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if b.Kind != model.BackoffExponential || attemptsMade <= 1 {
		return min(b.Delay, MaxRetryDelay)
	}

	d := b.Delay
	for i := 1; i < attemptsMade; i++ {
		if d >= MaxRetryDelay/2 {
			return MaxRetryDelay
		}
		d *= 2
	}
	return min(d, MaxRetryDelay)
}

// RetryDecision is the outcome of a failed attempt.
type RetryDecision struct {
	// Retry is false once attempts are exhausted; the job is then failed.
	Retry bool
	Delay time.Duration
}

// DecideRetry applies the job's attempt budget and backoff policy.
func DecideRetry(j *model.Job) RetryDecision {
	if !j.AttemptsLeft() {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Delay: RetryDelay(j.Backoff, j.AttemptsMade)}
}
