// Package config loads the HAL configuration: YAML overlaid on built-in
// defaults, with named profiles embedded in the binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	PCA9685   PCA9685Config   `yaml:"pca9685"`
	MPU6050   MPU6050Config   `yaml:"mpu6050"`
	DHT22     DHT22Config     `yaml:"dht22"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ---- BUS ----

type BusConfig struct {
	Name      string `yaml:"name"` // host bus name, "" = first available
	SCL       string `yaml:"scl"`
	SDA       string `yaml:"sda"`
	FreqHz    int    `yaml:"freq_hz"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- DEVICES ----

type PCA9685Config struct {
	Enabled     bool   `yaml:"enabled"`
	BaseAddress uint16 `yaml:"base_address"`
	Boards      int    `yaml:"boards"`
	PWMFreqHz   int    `yaml:"pwm_freq_hz"`
	MaxDuty     uint16 `yaml:"max_duty"`
	PollMs      int    `yaml:"poll_ms"`
}

type MPU6050Config struct {
	Enabled           bool   `yaml:"enabled"`
	Address           uint16 `yaml:"address"`
	SampleRateDivider uint8  `yaml:"sample_rate_divider"`
	DLPF              uint8  `yaml:"dlpf"`
	GyroRange         uint8  `yaml:"gyro_range"`
	AccelRange        uint8  `yaml:"accel_range"`
	PollMs            int    `yaml:"poll_ms"`
}

type DHT22Config struct {
	Enabled bool   `yaml:"enabled"`
	Pin     string `yaml:"pin"`
	PollMs  int    `yaml:"poll_ms"`
}

// ---- RECOVERY ----

type RecoveryConfig struct {
	MaxRetries        int `yaml:"max_retries"`
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	Broker     string `yaml:"broker"` // e.g. tcp://localhost:1883, "" disables MQTT
	Topic      string `yaml:"topic"`  // prefix, reports go to <topic>/<node>/<device>[/<id>]
	ClientID   string `yaml:"client_id"`
	QoS        byte   `yaml:"qos"`
	IntervalMs int    `yaml:"interval_ms"`
	File       string `yaml:"file"`        // append-only report log, "" disables it
	MaxPending int    `yaml:"max_pending"` // queued file lines before reports are dropped
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration of the reference robot.
func Default() Config {
	return Config{
		Bus: BusConfig{SCL: "GPIO22", SDA: "GPIO21", FreqHz: 100_000, TimeoutMs: 25},
		PCA9685: PCA9685Config{
			Enabled: true, BaseAddress: 0x40, Boards: 1,
			PWMFreqHz: 50, MaxDuty: 4095, PollMs: 2000,
		},
		MPU6050: MPU6050Config{
			Enabled: true, Address: 0x68, SampleRateDivider: 9,
			DLPF: 3, GyroRange: 3, AccelRange: 3, PollMs: 500,
		},
		DHT22:     DHT22Config{Enabled: true, Pin: "GPIO4", PollMs: 5000},
		Recovery:  RecoveryConfig{MaxRetries: 5, InitialIntervalMs: 15_000, MaxIntervalMs: 480_000},
		Telemetry: TelemetryConfig{Topic: "robohal", IntervalMs: 5000, MaxPending: 16},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Parse overlays YAML on Default. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if len(b) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytesReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Embedded parses a built-in profile.
func Embedded(name string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(name)
	if !ok {
		return Config{}, fmt.Errorf("config: no embedded profile %q", name)
	}
	return Parse(raw)
}

// ---- durations ----

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (b BusConfig) Timeout() time.Duration              { return ms(b.TimeoutMs) }
func (p PCA9685Config) Poll() time.Duration             { return ms(p.PollMs) }
func (m MPU6050Config) Poll() time.Duration             { return ms(m.PollMs) }
func (d DHT22Config) Poll() time.Duration               { return ms(d.PollMs) }
func (r RecoveryConfig) InitialInterval() time.Duration { return ms(r.InitialIntervalMs) }
func (r RecoveryConfig) MaxInterval() time.Duration     { return ms(r.MaxIntervalMs) }
func (t TelemetryConfig) Interval() time.Duration       { return ms(t.IntervalMs) }
