// Package hal runs the robot's peripherals. It brings the configured devices
// up, drives their periodic read and recovery from one goroutine and hands
// their reports to telemetry.
package hal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"robohal-go/busport"
	"robohal-go/drivers/dht22"
	"robohal-go/drivers/mpu6050"
	"robohal-go/errcode"
	"robohal-go/services/config"
	dht22dev "robohal-go/services/hal/devices/dht22"
	mpu6050dev "robohal-go/services/hal/devices/mpu6050"
	pca9685dev "robohal-go/services/hal/devices/pca9685"
	"robohal-go/services/hal/internal/core"
	"robohal-go/services/hal/internal/poller"
	"robohal-go/services/telemetry"
	"robohal-go/types"
	"robohal-go/x/timex"
)

const (
	jobTelemetry = "telemetry"

	tickQueueLen    = 16
	requestQueueLen = 8
)

// Hardware opens the physical resources named in the configuration.
type Hardware interface {
	I2C(name string) (drivers.I2C, error)
	Line(pin string) (dht22.Line, error)
}

type Options struct {
	Config   config.Config
	Hardware Hardware
	// Sink receives every report on the telemetry tick. Nil disables
	// publishing; Reports still works.
	Sink   telemetry.Sink
	Clock  timex.Clock
	Logger *slog.Logger
}

type Service struct {
	cfg   config.Config
	pol   core.Policy
	clock timex.Clock
	log   *slog.Logger
	sink  telemetry.Sink

	port    *busport.Serial
	pwm     *pca9685dev.Controller
	imu     *mpu6050dev.Device
	climate *dht22dev.Device

	// Boards that failed their first bring-up are not registered; the PWM
	// tick retries registration on this schedule.
	pwmPending types.State
	pwmBackoff core.Backoff

	poll  *poller.Poller
	ticks chan poller.Tick
	reqs  chan request
}

type request struct {
	fn    func() error
	reply chan error
}

// New validates the configuration and builds every enabled device. No bus
// traffic happens until Init.
func New(opts Options) (*Service, error) {
	const op = "hal.new"
	cfg := opts.Config
	if err := config.Validate(&cfg); err != nil {
		return nil, errcode.Wrap(errcode.Configuration, op, err)
	}
	if opts.Hardware == nil {
		return nil, errcode.New(errcode.Configuration, op, "no hardware")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfg:   cfg,
		clock: timex.Or(opts.Clock),
		log:   log.With("svc", "hal"),
		sink:  opts.Sink,
		pol: core.Policy{
			MaxRetries:      cfg.Recovery.MaxRetries,
			InitialInterval: cfg.Recovery.InitialInterval(),
			MaxInterval:     cfg.Recovery.MaxInterval(),
		}.Normalize(),
		ticks: make(chan poller.Tick, tickQueueLen),
		reqs:  make(chan request, requestQueueLen),
	}
	s.poll = poller.New(s.ticks)

	if cfg.PCA9685.Enabled || cfg.MPU6050.Enabled {
		bus, err := opts.Hardware.I2C(cfg.Bus.Name)
		if err != nil {
			return nil, errcode.Wrap(errcode.Transport, op, fmt.Errorf("open i2c %q: %w", cfg.Bus.Name, err))
		}
		s.port = busport.New(bus, busport.Options{Timeout: cfg.Bus.Timeout()})
	}
	busCfg := busport.Config{
		SCL:       cfg.Bus.SCL,
		SDA:       cfg.Bus.SDA,
		Frequency: physic.Frequency(cfg.Bus.FreqHz) * physic.Hertz,
	}

	if c := cfg.PCA9685; c.Enabled {
		pwm, err := pca9685dev.New(pca9685dev.Config{
			Port:        s.port,
			Bus:         busCfg,
			BaseAddress: c.BaseAddress,
			Frequency:   physic.Frequency(c.PWMFreqHz) * physic.Hertz,
			MaxDuty:     c.MaxDuty,
			Policy:      s.pol,
			Clock:       s.clock,
			Logger:      log,
		})
		if err != nil {
			return nil, err
		}
		s.pwm = pwm
	}
	if c := cfg.MPU6050; c.Enabled {
		imu, err := mpu6050dev.New(mpu6050dev.Config{
			Port:    s.port,
			Bus:     busCfg,
			Address: c.Address,
			Driver: &mpu6050.Config{
				SampleRateDivider: c.SampleRateDivider,
				DLPF:              c.DLPF,
				GyroRange:         mpu6050.Range(c.GyroRange),
				AccelRange:        mpu6050.Range(c.AccelRange),
			},
			Policy: s.pol,
			Clock:  s.clock,
			Logger: log,
		})
		if err != nil {
			return nil, err
		}
		s.imu = imu
	}
	if c := cfg.DHT22; c.Enabled {
		line, err := opts.Hardware.Line(c.Pin)
		if err != nil {
			return nil, errcode.Wrap(errcode.Transport, op, fmt.Errorf("open pin %q: %w", c.Pin, err))
		}
		climate, err := dht22dev.New(dht22dev.Config{Line: line, Policy: s.pol, Clock: s.clock, Logger: log})
		if err != nil {
			return nil, err
		}
		s.climate = climate
	}
	return s, nil
}

// Init brings every enabled device up once. Failures are recorded in device
// state and returned joined; the periodic ticks take over recovery.
func (s *Service) Init() error {
	var errs []error
	if s.pwm != nil {
		if err := s.pwm.Init(s.cfg.PCA9685.Boards); err != nil {
			s.pwmPending = types.StateError
			s.pwmBackoff = core.Backoff{Interval: s.pol.InitialInterval, LastAttempt: s.clock.Now()}
			errs = append(errs, err)
		}
	}
	if s.imu != nil {
		if err := s.imu.Init(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.climate != nil {
		if err := s.climate.Init(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Devices lists the enabled device names.
func (s *Service) Devices() []string {
	var out []string
	if s.pwm != nil {
		out = append(out, pca9685dev.Name)
	}
	if s.imu != nil {
		out = append(out, mpu6050dev.Name)
	}
	if s.climate != nil {
		out = append(out, dht22dev.Name)
	}
	return out
}

func (s *Service) schedule() {
	jitter := func(d time.Duration) time.Duration { return d / 20 }
	if s.pwm != nil {
		s.poll.Upsert(pca9685dev.Name, s.cfg.PCA9685.Poll(), jitter(s.cfg.PCA9685.Poll()))
	}
	if s.imu != nil {
		s.poll.Upsert(mpu6050dev.Name, s.cfg.MPU6050.Poll(), jitter(s.cfg.MPU6050.Poll()))
	}
	if s.climate != nil {
		s.poll.Upsert(dht22dev.Name, s.cfg.DHT22.Poll(), 0)
	}
	if s.sink != nil {
		s.poll.Upsert(jobTelemetry, s.cfg.Telemetry.Interval(), 0)
	}
}

// Run drives the devices until ctx is done. Every device operation runs on
// this goroutine, including commands submitted through the methods below.
func (s *Service) Run(ctx context.Context) {
	go s.poll.Run(ctx)
	s.schedule()
	s.log.Info("running", "devices", s.Devices())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopped", "reason", ctx.Err())
			return
		case t := <-s.ticks:
			if t.Late > t.Every {
				s.log.Warn("tick overrun", "job", t.Name, "late", t.Late, "dropped", s.poll.Dropped(t.Name))
			}
			s.handleTick(t.Name)
		case r := <-s.reqs:
			r.reply <- r.fn()
		}
	}
}

// handleTick reads one device and then gives recovery a chance on the same
// tick. A read failure stamps the attempt time, so recovery waits a full
// interval before the first re-init.
func (s *Service) handleTick(name string) {
	switch name {
	case pca9685dev.Name:
		s.retryPWMRegistration()
		for _, id := range s.pwm.IDs() {
			_, _ = s.pwm.Read(id)
		}
		s.pwm.RecoverAll()
	case mpu6050dev.Name:
		_, _ = s.imu.Read()
		s.imu.Recover()
	case dht22dev.Name:
		_, _ = s.climate.Read()
		s.climate.Recover()
	case jobTelemetry:
		s.publish()
	}
}

func (s *Service) retryPWMRegistration() {
	st, b, attempted := core.Step(s.pol, s.pwmPending, s.pwmBackoff, s.clock.Now(), func() types.State {
		if err := s.pwm.Init(s.cfg.PCA9685.Boards); err != nil {
			return types.StateError
		}
		return types.StateReady
	})
	s.pwmPending, s.pwmBackoff = st, b
	if attempted && !st.IsError() {
		s.log.Info("all boards registered", "boards", len(s.pwm.IDs()))
	}
}

func (s *Service) publish() {
	var errs []error
	for _, r := range s.Reports() {
		if err := s.sink.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Warn("publish failed", "err", err)
	}
}

// Reports projects every device. Safe to call from any goroutine.
func (s *Service) Reports() []types.Report {
	var out []types.Report
	if s.pwm != nil {
		out = append(out, s.pwm.Reports()...)
	}
	if s.imu != nil {
		out = append(out, s.imu.Report())
	}
	if s.climate != nil {
		out = append(out, s.climate.Report())
	}
	return out
}

// do runs fn on the service goroutine and waits for its result.
func (s *Service) do(ctx context.Context, fn func() error) error {
	r := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) notEnabled(dev string) error {
	return errcode.New(errcode.NotFound, "hal", fmt.Sprintf("device %q not enabled", dev))
}

// SetAngle drives the channels in mask on PWM board id to angle degrees.
func (s *Service) SetAngle(ctx context.Context, id uint8, mask uint16, angle float64) error {
	if s.pwm == nil {
		return s.notEnabled(pca9685dev.Name)
	}
	return s.do(ctx, func() error { return s.pwm.SetAngle(id, mask, angle) })
}

// Read takes one reading from a device now. id selects the PWM board and
// is ignored for the sensors.
func (s *Service) Read(ctx context.Context, dev string, id uint8) (any, error) {
	var out any
	err := s.do(ctx, func() error {
		var err error
		switch {
		case dev == pca9685dev.Name && s.pwm != nil:
			out, err = s.pwm.Read(id)
		case dev == mpu6050dev.Name && s.imu != nil:
			out, err = s.imu.Read()
		case dev == dht22dev.Name && s.climate != nil:
			out, err = s.climate.Read()
		default:
			err = s.notEnabled(dev)
		}
		return err
	})
	return out, err
}

// Recover runs one recovery tick for a device. The backoff schedule still
// applies: a device whose interval has not elapsed is left alone.
func (s *Service) Recover(ctx context.Context, dev string, id uint8) error {
	return s.do(ctx, func() error {
		switch {
		case dev == pca9685dev.Name && s.pwm != nil:
			return s.pwm.Recover(id)
		case dev == mpu6050dev.Name && s.imu != nil:
			s.imu.Recover()
		case dev == dht22dev.Name && s.climate != nil:
			s.climate.Recover()
		default:
			return s.notEnabled(dev)
		}
		return nil
	})
}
