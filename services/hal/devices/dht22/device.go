// Package dht22dev runs the single-wire climate sensor.
package dht22dev

import (
	"errors"

	"golang.org/x/exp/slog"

	"robohal-go/drivers/dht22"
	"robohal-go/errcode"
	"robohal-go/services/hal/internal/core"
	"robohal-go/types"
	"robohal-go/x/convert"
	"robohal-go/x/timex"
)

const Name = "dht22"

type Config struct {
	Line   dht22.Line
	Policy core.Policy
	Clock  timex.Clock
	Logger *slog.Logger
}

type Device struct {
	clock timex.Clock
	log   *slog.Logger
	drv   dht22.Device
	cell  *core.Cell[types.ClimateReading]
}

func New(cfg Config) (*Device, error) {
	if cfg.Line == nil {
		return nil, errcode.New(errcode.Configuration, "dht22.new", "nil line")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clk := timex.Or(cfg.Clock)
	return &Device{
		clock: clk,
		log:   log.With("dev", Name),
		drv:   dht22.New(cfg.Line),
		cell:  core.NewCell[types.ClimateReading](cfg.Policy, clk),
	}, nil
}

// Init configures the line and takes one reading to prove the sensor answers.
func (d *Device) Init() error {
	if st := d.cell.State(); st != types.StateUninitialized {
		if st.IsError() {
			return d.cell.Snapshot().Err
		}
		return nil
	}
	if err := d.cell.Init(d.bringUp); err != nil {
		d.log.Warn("init failed", "state", d.cell.State(), "err", err)
		return err
	}
	d.log.Info("ready")
	return nil
}

func (d *Device) bringUp() (types.State, error) {
	const op = "dht22.init"
	err := d.drv.Configure()
	if err == nil {
		return types.StateReady, nil
	}
	var ie *dht22.InitError
	if errors.As(err, &ie) && ie.Step == dht22.StepChecksum {
		return types.StateVerificationError, errcode.Wrap(errcode.Verification, op, err)
	}
	return types.StateTransportError, errcode.Wrap(errcode.Transport, op, err)
}

// Read takes one measurement. A checksum mismatch or an impossible humidity
// counts as a failed read.
func (d *Device) Read() (types.ClimateReading, error) {
	r, err := d.cell.Read(func() (types.ClimateReading, error) {
		s, err := d.drv.Read()
		if err != nil {
			code := errcode.Transport
			if errors.Is(err, dht22.ErrChecksum) || errors.Is(err, dht22.ErrRange) {
				code = errcode.Verification
			}
			return types.ClimateReading{}, errcode.Wrap(code, "dht22.read", err)
		}
		return types.ClimateReading{
			TemperatureC: convert.Celsius(s.Temperature),
			TemperatureF: convert.Fahrenheit(s.Temperature),
			Humidity:     convert.Percent(s.Humidity),
			TakenAt:      d.clock.Now(),
		}, nil
	})
	switch {
	case err == nil:
		d.log.Debug("sample", "temp_c", r.TemperatureC, "humidity", r.Humidity)
	case errcode.Of(err) != errcode.NotReady:
		d.log.Warn("read failed", "err", err)
	}
	return r, err
}

func (d *Device) Recover() {
	prev := d.cell.State()
	attempted, err := d.cell.Recover(d.bringUp)
	switch {
	case !attempted:
	case err != nil:
		d.log.Warn("recovery failed", "state", d.cell.State(), "err", err)
	default:
		d.log.Info("recovered", "from", prev)
	}
}

func (d *Device) State() types.State { return d.cell.State() }

func (d *Device) Report() types.Report {
	return d.cell.Snapshot().Report(Name, nil, 0, d.clock.Now())
}
