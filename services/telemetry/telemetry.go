// Package telemetry publishes device reports. A Sink takes one report at a
// time; the HAL service calls sinks from its own goroutine.
package telemetry

import (
	"errors"
	"os"

	"github.com/denisbrodbeck/machineid"
	"golang.org/x/exp/slog"

	"robohal-go/types"
)

// Sink receives device reports.
type Sink interface {
	Publish(r types.Report) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(r types.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes reports to a structured logger. Fresh readings log at
// Debug; stale ones at Info so a failing device stays visible.
type LogSink struct {
	Log *slog.Logger
}

func (l LogSink) Publish(r types.Report) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"dev", r.Device, "state", r.State, "fresh", r.Fresh}
	if r.ID != nil {
		attrs = append(attrs, "id", *r.ID)
	}
	if r.Fresh {
		log.Debug("report", append(attrs, "reading", r.Reading)...)
		return nil
	}
	log.Info("report", append(attrs, "retry", r.Recovery.RetryCount, "interval", r.Recovery.Interval)...)
	return nil
}

const appID = "robohal"

// NodeID identifies this controller in topics and client ids. It is an
// application-scoped hash of the machine id, so the raw id never leaves the
// host; the hostname is used when no machine id is available.
func NodeID() string {
	if id, err := machineid.ProtectedID(appID); err == nil && len(id) >= 12 {
		return id[:12]
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
