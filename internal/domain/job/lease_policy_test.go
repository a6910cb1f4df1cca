package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, policy.Default())

	policy, err = NewLeasePolicy(0)
	require.ErrorIs(t, err, ErrInvalidDefaultLease)
	assert.Nil(t, policy)
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		request time.Duration
		want    time.Duration
		source  LeaseSource
	}{
		{"explicit", 45 * time.Second, 45 * time.Second, LeaseSourceExplicit},
		{"explicit truncated", 45*time.Second + 900*time.Millisecond, 45 * time.Second, LeaseSourceExplicit},
		{"default", 0, 30 * time.Second, LeaseSourceDefault},
		{"sub-second", 500 * time.Millisecond, time.Second, LeaseSourceClamped},
		{"negative", -time.Second, time.Second, LeaseSourceClamped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Resolve(tt.request)
			assert.Equal(t, tt.want, d.Duration)
			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, int(tt.want/time.Second), d.Seconds())
		})
	}
}

func TestLeaseDecision_HeartbeatInterval(t *testing.T) {
	d := LeaseDecision{Duration: 30 * time.Second}
	assert.Equal(t, 15*time.Second, d.HeartbeatInterval())
}
