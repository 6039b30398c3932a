package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	var errs []error
	bad := func(format string, a ...any) { errs = append(errs, fmt.Errorf(format, a...)) }

	if cfg.Bus.FreqHz <= 0 {
		bad("bus.freq_hz must be positive")
	}
	if cfg.Bus.TimeoutMs == 0 {
		bad("bus.timeout_ms must be non-zero (negative disables the bound)")
	}

	if p := cfg.PCA9685; p.Enabled {
		if p.BaseAddress < 0x08 || p.BaseAddress > 0x77 {
			bad("pca9685.base_address 0x%02x outside 0x08..0x77", p.BaseAddress)
		}
		if p.Boards < 1 || int(p.BaseAddress)+p.Boards > 0x78 {
			bad("pca9685.boards %d does not fit from 0x%02x", p.Boards, p.BaseAddress)
		}
		// 25 MHz / (4096 * f) - 1 must land in 3..255.
		if p.PWMFreqHz < 24 || p.PWMFreqHz > 1525 {
			bad("pca9685.pwm_freq_hz %d outside 24..1525", p.PWMFreqHz)
		}
		if p.MaxDuty == 0 || p.MaxDuty > 4095 {
			bad("pca9685.max_duty %d outside 1..4095", p.MaxDuty)
		}
		if p.PollMs <= 0 {
			bad("pca9685.poll_ms must be positive")
		}
	}

	if m := cfg.MPU6050; m.Enabled {
		if m.Address != 0x68 && m.Address != 0x69 {
			bad("mpu6050.address 0x%02x is not 0x68 or 0x69", m.Address)
		}
		if m.DLPF > 6 {
			bad("mpu6050.dlpf %d outside 0..6", m.DLPF)
		}
		if m.GyroRange > 3 || m.AccelRange > 3 {
			bad("mpu6050 range index outside 0..3")
		}
		if m.PollMs <= 0 {
			bad("mpu6050.poll_ms must be positive")
		}
	}

	if d := cfg.DHT22; d.Enabled {
		if d.Pin == "" {
			bad("dht22.pin is required")
		}
		// The sensor needs 2 s between conversions.
		if d.PollMs < 2000 {
			bad("dht22.poll_ms %d below 2000", d.PollMs)
		}
	}

	r := cfg.Recovery
	if r.MaxRetries <= 0 {
		bad("recovery.max_retries must be positive")
	}
	if r.InitialIntervalMs <= 0 || r.MaxIntervalMs < r.InitialIntervalMs {
		bad("recovery intervals need 0 < initial_interval_ms <= max_interval_ms")
	}

	if t := cfg.Telemetry; t.Broker != "" {
		if t.Topic == "" {
			bad("telemetry.topic is required with a broker")
		}
		if t.QoS > 2 {
			bad("telemetry.qos %d outside 0..2", t.QoS)
		}
	}
	if cfg.Telemetry.IntervalMs <= 0 {
		bad("telemetry.interval_ms must be positive")
	}
	if t := cfg.Telemetry; t.File != "" && t.MaxPending <= 0 {
		bad("telemetry.max_pending must be positive with a file")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level %q unknown", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		bad("log.format %q unknown", cfg.Log.Format)
	}
	return errors.Join(errs...)
}
