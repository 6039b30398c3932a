// Package boot holds the process setup shared by the commands: config
// selection, the logger and the telemetry sinks.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"robohal-go/services/config"
	"robohal-go/services/telemetry"
)

// LoadConfig reads path when set, else the named embedded profile, else the
// defaults. The result is validated.
func LoadConfig(path, profile string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.Load(path)
	case profile != "":
		cfg, err = config.Embedded(profile)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the process logger. Empty fields fall back to info/text.
func NewLogger(w io.Writer, c config.LogConfig) (*slog.Logger, error) {
	var lvl slog.Level
	if c.Level != "" {
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.Format)
	}
}

const connectWait = 5 * time.Second

// Sinks returns the log sink plus a file sink and an MQTT sink when they are
// configured. The returned close func drains the file and disconnects the
// broker. A broker that is down at start is not fatal: paho keeps retrying
// in the background.
func Sinks(ctx context.Context, c config.TelemetryConfig, log *slog.Logger) (telemetry.Sink, func() error, error) {
	sinks := telemetry.Multi{telemetry.LogSink{Log: log.With("svc", "telemetry")}}
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}

	if c.File != "" {
		f, err := telemetry.NewFileSink(telemetry.FileConfig{
			Path:       c.File,
			MaxPending: c.MaxPending,
			Logger:     log,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, f)
		closers = append(closers, f.Close)
	}

	if c.Broker != "" {
		m, err := telemetry.NewMQTT(telemetry.MQTTConfig{
			Broker:   c.Broker,
			Topic:    c.Topic,
			ClientID: c.ClientID,
			QoS:      c.QoS,
			Logger:   log,
		})
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		cctx, cancel := context.WithTimeout(ctx, connectWait)
		defer cancel()
		if err := m.Connect(cctx); err != nil {
			log.Warn("mqtt connect", "broker", c.Broker, "err", err)
		}
		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}
	return sinks, closeAll, nil
}
