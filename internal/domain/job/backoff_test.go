package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

func TestRetryDelay(t *testing.T) {
	exp := model.Backoff{Kind: model.BackoffExponential, Delay: time.Second}
	fixed := model.Backoff{Kind: model.BackoffFixed, Delay: 5 * time.Second}

	tests := []struct {
		name     string
		backoff  model.Backoff
		attempts int
		want     time.Duration
	}{
		{"exponential first retry", exp, 1, time.Second},
		{"exponential second retry", exp, 2, 2 * time.Second},
		{"exponential third retry", exp, 3, 4 * time.Second},
		{"exponential capped", exp, 80, MaxRetryDelay},
		{"fixed", fixed, 4, 5 * time.Second},
		{"zero delay", model.Backoff{Kind: model.BackoffExponential}, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryDelay(tt.backoff, tt.attempts))
		})
	}
}

func TestDecideRetry(t *testing.T) {
	j := &model.Job{AttemptsMade: 1, MaxAttempts: 3, Backoff: model.DefaultBackoff()}
	assert.Equal(t, RetryDecision{Retry: true, Delay: time.Second}, DecideRetry(j))

	j.AttemptsMade = 2
	assert.Equal(t, RetryDecision{Retry: true, Delay: 2 * time.Second}, DecideRetry(j))

	j.AttemptsMade = 3
	assert.False(t, DecideRetry(j).Retry)
}
