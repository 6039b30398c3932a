package types

import "time"

// Recovery is the retry bookkeeping exposed for telemetry.
type Recovery struct {
	RetryCount  int           `json:"retry_count"`
	Interval    time.Duration `json:"retry_interval_ns"`
	LastAttempt time.Time     `json:"last_attempt,omitempty"`
	NextAttempt time.Time     `json:"next_attempt,omitempty"`
}

// Report is the read-only projection of a device published as telemetry.
// Reading is the last converted sample; it is only current when Fresh is true.
type Report struct {
	Device   string   `json:"device"`         // "pca9685", "mpu6050", "dht22"
	ID       *uint8   `json:"id,omitempty"`   // board id for multi-instance peripherals
	Addr     uint16   `json:"addr,omitempty"` // bus address, 0 for single-wire parts
	State    State    `json:"state"`
	Fresh    bool     `json:"fresh"`
	Reading  any      `json:"reading,omitempty"`
	Recovery Recovery `json:"recovery"`
	TS       int64    `json:"ts_ms"`
}
