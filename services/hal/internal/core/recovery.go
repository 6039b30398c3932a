package core

import (
	"time"

	"robohal-go/types"
	"robohal-go/x/mathx"
)

// Recovery defaults.
const (
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 15 * time.Second
	DefaultMaxInterval     = 8 * time.Minute
)

// Policy bounds the recovery schedule of one device.
type Policy struct {
	// MaxRetries failed attempts at one interval before it doubles.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the schedule used on the robot.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Normalize fills zero fields with defaults and keeps MaxInterval >= InitialInterval.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// Backoff is the recovery bookkeeping carried by a device.
type Backoff struct {
	RetryCount  int
	Interval    time.Duration
	LastAttempt time.Time
}

// Fresh returns the bookkeeping of a device that has never failed.
func (p Policy) Fresh() Backoff { return Backoff{Interval: p.InitialInterval} }

// Step evaluates one recovery tick. It calls reinit at most once, and only
// when s is an error state whose interval has elapsed since the last attempt.
// reinit returns the state the device reached.
//
// On success the device is ready and the bookkeeping resets. On failure the
// newest error state is kept and the retry count grows; after MaxRetries
// failures at one interval the interval doubles (capped) and the count
// restarts. LastAttempt is stamped with now whenever reinit ran.
func Step(p Policy, s types.State, b Backoff, now time.Time, reinit func() types.State) (types.State, Backoff, bool) {
	if !s.IsError() {
		return s, b, false
	}
	if b.Interval <= 0 {
		b.Interval = p.InitialInterval
	}
	if now.Sub(b.LastAttempt) < b.Interval {
		return s, b, false
	}

	next := reinit()
	if !next.IsError() {
		return types.StateReady, Backoff{Interval: p.InitialInterval, LastAttempt: now}, true
	}

	b.LastAttempt = now
	b.RetryCount++
	if b.RetryCount >= p.MaxRetries {
		b.RetryCount = 0
		b.Interval = mathx.Clamp(b.Interval*2, p.InitialInterval, p.MaxInterval)
	}
	return next, b, true
}
