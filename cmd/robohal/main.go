// Command robohal runs the peripheral HAL: it brings the PWM boards, the
// inertial sensor and the climate sensor up, polls them with recovery and
// publishes their reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"robohal-go/internal/boot"
	"robohal-go/services/hal"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	profile    = flag.String("profile", "", "embedded profile (robot, bench) when -config is empty")
	logLevel   = flag.String("log-level", "", "override log.level")
	logFormat  = flag.String("log-format", "", "override log.format")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "robohal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := boot.LoadConfig(*configPath, *profile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	log, err := boot.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := hal.OpenHost()
	if err != nil {
		return err
	}
	defer hw.Close()

	sink, closeSink, err := boot.Sinks(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer closeSink()

	svc, err := hal.New(hal.Options{Config: cfg, Hardware: hw, Sink: sink, Logger: log})
	if err != nil {
		return err
	}
	// Devices that fail here stay in their error state and recover on
	// later ticks.
	if err := svc.Init(); err != nil {
		log.Warn("init incomplete", "err", err)
	}
	svc.Run(ctx)
	return nil
}
