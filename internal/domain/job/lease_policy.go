package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// MinLease is the shortest lease the broker accepts; leases are stored in whole seconds.
const MinLease = time.Second

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	LeaseSourceExplicit LeaseSource = "explicit"
	LeaseSourceDefault  LeaseSource = "default"
	LeaseSourceClamped  LeaseSource = "clamped"
)

// LeaseDecision is the outcome of resolving a requested lease.
type LeaseDecision struct {
	Duration time.Duration
	Source   LeaseSource
}

// Seconds returns the lease in whole seconds, as stored by the broker.
func (d LeaseDecision) Seconds() int {
	return int(d.Duration / time.Second)
}

// HeartbeatInterval is how often a worker extends the lease while a handler runs.
func (d LeaseDecision) HeartbeatInterval() time.Duration {
	return d.Duration / 2
}

// LeasePolicy normalises worker lease durations.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	return p.defaultLease
}

// Resolve picks the default for a zero request, truncates to whole seconds,
// and clamps anything shorter than MinLease.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	d := LeaseDecision{Duration: request.Truncate(time.Second), Source: LeaseSourceExplicit}
	if request == 0 {
		d = LeaseDecision{Duration: p.defaultLease.Truncate(time.Second), Source: LeaseSourceDefault}
	}
	if d.Duration < MinLease {
		d.Duration = MinLease
		d.Source = LeaseSourceClamped
	}
	return d
}
