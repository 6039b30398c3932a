// Package pca9685dev manages a set of PCA9685 boards sharing one bus: board
// n answers at the base address plus n. Boards are registered once, driven
// by SetAngle, polled for health and re-initialised after failures.
package pca9685dev

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"golang.org/x/exp/slog"
	"periph.io/x/conn/v3/physic"

	"robohal-go/busport"
	"robohal-go/drivers/pca9685"
	"robohal-go/errcode"
	"robohal-go/services/hal/internal/core"
	"robohal-go/types"
	"robohal-go/x/convert"
	"robohal-go/x/timex"
)

const Name = "pca9685"

// Config is everything a Controller needs. Port is required.
type Config struct {
	Port        busport.Port
	Bus         busport.Config
	BaseAddress uint16           // default 0x40
	Frequency   physic.Frequency // default 50 Hz
	MaxDuty     uint16           // default 4095
	Settle      time.Duration    // oscillator wait, see pca9685.Config
	Policy      core.Policy
	Clock       timex.Clock
	Logger      *slog.Logger
}

// Board is one registered PCA9685.
type Board struct {
	id   uint8
	addr uint16
	drv  pca9685.Device
	cell *core.Cell[types.PWMStatus]
}

func (b *Board) ID() uint8          { return b.id }
func (b *Board) Addr() uint16       { return b.addr }
func (b *Board) State() types.State { return b.cell.State() }

// Controller owns the board registry.
type Controller struct {
	cfg   Config
	clock timex.Clock
	log   *slog.Logger
	reg   *core.Registry[*Board]
}

// New validates cfg and returns an empty controller. Nothing touches the bus
// until Init.
func New(cfg Config) (*Controller, error) {
	const op = "pca9685.new"
	if cfg.Port == nil {
		return nil, errcode.New(errcode.Configuration, op, "nil port")
	}
	if cfg.BaseAddress == 0 {
		cfg.BaseAddress = pca9685.BaseAddress
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = pca9685.DefaultFrequency
	}
	if cfg.MaxDuty == 0 {
		cfg.MaxDuty = pca9685.MaxDuty
	}
	if cfg.MaxDuty > pca9685.MaxDuty {
		return nil, errcode.New(errcode.Configuration, op, fmt.Sprintf("max duty %d above %d", cfg.MaxDuty, pca9685.MaxDuty))
	}
	if _, err := convert.Prescale(pca9685.Oscillator, cfg.Frequency, pca9685.Resolution); err != nil {
		return nil, err
	}
	capacity := 0x78 - int(cfg.BaseAddress)
	if capacity <= 0 {
		return nil, errcode.New(errcode.Configuration, op, fmt.Sprintf("base address 0x%02x leaves no room", cfg.BaseAddress))
	}
	cfg.Policy = cfg.Policy.Normalize()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:   cfg,
		clock: timex.Or(cfg.Clock),
		log:   log.With("dev", Name),
		reg:   core.NewRegistry[*Board](min(capacity, pca9685.MaxBoards)),
	}, nil
}

// Init registers boards 0..count-1. Boards already registered are left
// alone. A board that fails bring-up is not registered and its error is
// returned; boards registered before it remain.
func (c *Controller) Init(count int) error {
	return c.reg.RegisterOrGet(count, func(id uint8) (*Board, error) {
		b := &Board{
			id:   id,
			addr: c.cfg.BaseAddress + uint16(id),
			cell: core.NewCell[types.PWMStatus](c.cfg.Policy, c.clock),
		}
		b.drv = pca9685.New(c.cfg.Port, b.addr)
		if err := b.cell.Init(func() (types.State, error) { return c.bringUp(b) }); err != nil {
			c.log.Warn("init failed", "id", id, "addr", b.addr, "state", b.cell.State(), "err", err)
			return nil, err
		}
		c.log.Info("board ready", "id", id, "addr", b.addr)
		return b, nil
	})
}

// bringUp runs the init sequence and classifies the failing step.
func (c *Controller) bringUp(b *Board) (types.State, error) {
	const op = "pca9685.init"
	if err := c.cfg.Port.Configure(c.cfg.Bus); err != nil {
		return types.StateTransportError, errcode.Wrap(errcode.Transport, op, err)
	}
	err := b.drv.Configure(pca9685.Config{Frequency: c.cfg.Frequency, Settle: c.cfg.Settle})
	if err == nil {
		return types.StateReady, nil
	}
	var ie *pca9685.InitError
	if !errors.As(err, &ie) {
		return types.StateError, errcode.Wrap(errcode.Error, op, err)
	}
	switch {
	case ie.Step == pca9685.StepSleep:
		return types.StateResetError, errcode.Wrap(errcode.Transport, op, err)
	case ie.Step == pca9685.StepRestart:
		return types.StatePowerOnError, errcode.Wrap(errcode.Transport, op, err)
	case errors.Is(err, pca9685.ErrPrescaleMismatch):
		return types.StateVerificationError, errcode.Wrap(errcode.Verification, op, err)
	default:
		return types.StateTransportError, errcode.Wrap(errcode.Transport, op, err)
	}
}

// Find returns a registered board.
func (c *Controller) Find(id uint8) (*Board, error) { return c.reg.Find(id) }

// IDs lists registered boards in registration order.
func (c *Controller) IDs() []uint8 { return c.reg.IDs() }

// Read polls the health registers of one board.
func (c *Controller) Read(id uint8) (types.PWMStatus, error) {
	b, err := c.reg.Find(id)
	if err != nil {
		return types.PWMStatus{}, err
	}
	st, err := b.cell.Read(func() (types.PWMStatus, error) {
		s, err := b.drv.Status()
		if err != nil {
			return types.PWMStatus{}, errcode.Wrap(errcode.Transport, "pca9685.read", err)
		}
		return types.PWMStatus{
			Mode1:       s.Mode1,
			Prescale:    s.Prescale,
			FrequencyHz: convert.Hertz(s.Frequency),
			TakenAt:     c.clock.Now(),
		}, nil
	})
	if err != nil && errcode.Of(err) != errcode.NotReady {
		c.log.Warn("read failed", "id", id, "err", err)
	}
	return st, err
}

// SetAngle drives every channel selected by mask to angle degrees.
//
// Arguments are checked first and never change state. Channels are written
// in ascending order, one transaction each, ON = 0 and OFF = the duty for
// angle. The first failure stops the fan-out; channels already written keep
// their new value. A bus failure also moves the board to the error state.
func (c *Controller) SetAngle(id uint8, mask uint16, angle float64) error {
	const op = "pca9685.set_angle"
	if mask == 0 {
		return errcode.New(errcode.Configuration, op, "empty channel mask")
	}
	duty, err := convert.AngleToDuty(angle, c.cfg.MaxDuty)
	if err != nil {
		return err
	}
	b, err := c.reg.Find(id)
	if err != nil {
		return err
	}
	if st := b.cell.State(); !st.Operational() {
		return errcode.New(errcode.NotReady, op, fmt.Sprintf("board %d is %s", id, st))
	}

	off := duty.Counts()
	for m := mask; m != 0; m &= m - 1 {
		ch := bits.TrailingZeros16(m)
		if err := b.drv.SetChannel(ch, 0, off); err != nil {
			err = errcode.Wrap(errcode.Transport, op, fmt.Errorf("board %d channel %d: %w", id, ch, err))
			b.cell.Fail(types.StateError, err)
			c.log.Warn("channel write failed", "id", id, "channel", ch, "err", err)
			return err
		}
	}
	c.log.Debug("angle set", "id", id, "mask", fmt.Sprintf("0x%04x", mask), "angle", angle, "off", off)
	return nil
}

// Recover runs one recovery tick for a board.
func (c *Controller) Recover(id uint8) error {
	b, err := c.reg.Find(id)
	if err != nil {
		return err
	}
	c.recover(b)
	return nil
}

// RecoverAll runs one recovery tick for every board.
func (c *Controller) RecoverAll() {
	c.reg.Each(func(_ uint8, b *Board) bool {
		c.recover(b)
		return true
	})
}

func (c *Controller) recover(b *Board) {
	prev := b.cell.State()
	attempted, err := b.cell.Recover(func() (types.State, error) { return c.bringUp(b) })
	switch {
	case !attempted:
	case err != nil:
		snap := b.cell.Snapshot()
		c.log.Warn("recovery failed", "id", b.id, "state", snap.State, "retry", snap.Backoff.RetryCount,
			"interval", snap.Backoff.Interval, "err", err)
	default:
		c.log.Info("recovered", "id", b.id, "from", prev)
	}
}

// Report projects one board for telemetry.
func (c *Controller) Report(id uint8) (types.Report, error) {
	b, err := c.reg.Find(id)
	if err != nil {
		return types.Report{}, err
	}
	bid := b.id
	return b.cell.Snapshot().Report(Name, &bid, b.addr, c.clock.Now()), nil
}

// Reports projects every board in registration order.
func (c *Controller) Reports() []types.Report {
	out := make([]types.Report, 0, c.reg.Len())
	c.reg.Each(func(id uint8, _ *Board) bool {
		if r, err := c.Report(id); err == nil {
			out = append(out, r)
		}
		return true
	})
	return out
}
