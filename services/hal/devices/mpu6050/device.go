// Package mpu6050dev runs the inertial sensor: bring-up, periodic sampling
// and re-initialisation after failures.
package mpu6050dev

import (
	"errors"

	"golang.org/x/exp/slog"

	"robohal-go/busport"
	"robohal-go/drivers/mpu6050"
	"robohal-go/errcode"
	"robohal-go/services/hal/internal/core"
	"robohal-go/types"
	"robohal-go/x/timex"
)

const Name = "mpu6050"

type Config struct {
	Port    busport.Port
	Bus     busport.Config
	Address uint16          // default 0x68
	Driver  *mpu6050.Config // nil means mpu6050.DefaultConfig()
	Policy  core.Policy
	Clock   timex.Clock
	Logger  *slog.Logger
}

type Device struct {
	cfg   Config
	drvc  mpu6050.Config
	clock timex.Clock
	log   *slog.Logger
	drv   mpu6050.Device
	cell  *core.Cell[types.IMUReading]
}

func New(cfg Config) (*Device, error) {
	const op = "mpu6050.new"
	if cfg.Port == nil {
		return nil, errcode.New(errcode.Configuration, op, "nil port")
	}
	if cfg.Address == 0 {
		cfg.Address = mpu6050.Address
	}
	drvc := mpu6050.DefaultConfig()
	if cfg.Driver != nil {
		drvc = *cfg.Driver
	}
	if !drvc.AccelRange.Valid() || !drvc.GyroRange.Valid() {
		return nil, errcode.Wrap(errcode.Configuration, op, mpu6050.ErrRange)
	}
	if drvc.DLPF > mpu6050.DLPF5Hz {
		return nil, errcode.New(errcode.Configuration, op, "dlpf out of range")
	}
	cfg.Policy = cfg.Policy.Normalize()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clk := timex.Or(cfg.Clock)
	return &Device{
		cfg:   cfg,
		drvc:  drvc,
		clock: clk,
		log:   log.With("dev", Name),
		drv:   mpu6050.New(cfg.Port, cfg.Address),
		cell:  core.NewCell[types.IMUReading](cfg.Policy, clk),
	}, nil
}

// Init brings the sensor up. Only the first call touches the bus; later
// calls report the current standing and leave recovery to Recover.
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
	d.log.Info("ready", "addr", d.cfg.Address)
	return nil
}

func (d *Device) bringUp() (types.State, error) {
	const op = "mpu6050.init"
	if err := d.cfg.Port.Configure(d.cfg.Bus); err != nil {
		return types.StateTransportError, errcode.Wrap(errcode.Transport, op, err)
	}
	err := d.drv.Configure(d.drvc)
	if err == nil {
		return types.StateReady, nil
	}
	var ie *mpu6050.InitError
	if !errors.As(err, &ie) {
		return types.StateError, errcode.Wrap(errcode.Error, op, err)
	}
	switch ie.Step {
	case mpu6050.StepPowerOn, mpu6050.StepWake:
		return types.StatePowerOnError, errcode.Wrap(errcode.Transport, op, err)
	case mpu6050.StepReset:
		return types.StateResetError, errcode.Wrap(errcode.Transport, op, err)
	case mpu6050.StepIdentify:
		if errors.Is(err, mpu6050.ErrWhoAmI) {
			return types.StateVerificationError, errcode.Wrap(errcode.Verification, op, err)
		}
	}
	return types.StateTransportError, errcode.Wrap(errcode.Transport, op, err)
}

// Read takes one sample.
func (d *Device) Read() (types.IMUReading, error) {
	r, err := d.cell.Read(func() (types.IMUReading, error) {
		s, err := d.drv.Read()
		if err != nil {
			return types.IMUReading{}, errcode.Wrap(errcode.Transport, "mpu6050.read", err)
		}
		return types.IMUReading{Accel: s.Accel, Gyro: s.Gyro, TakenAt: d.clock.Now()}, nil
	})
	switch {
	case err == nil:
		d.log.Debug("sample", "accel", r.Accel, "gyro", r.Gyro)
	case errcode.Of(err) != errcode.NotReady:
		d.log.Warn("read failed", "err", err)
	}
	return r, err
}

// Recover runs one recovery tick.
func (d *Device) Recover() {
	prev := d.cell.State()
	attempted, err := d.cell.Recover(d.bringUp)
	switch {
	case !attempted:
	case err != nil:
		b := d.cell.Snapshot().Backoff
		d.log.Warn("recovery failed", "state", d.cell.State(), "retry", b.RetryCount, "interval", b.Interval, "err", err)
	default:
		d.log.Info("recovered", "from", prev)
	}
}

func (d *Device) State() types.State { return d.cell.State() }

func (d *Device) Report() types.Report {
	return d.cell.Snapshot().Report(Name, nil, d.cfg.Address, d.clock.Now())
}
