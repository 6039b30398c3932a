// Package pca9685 drives the NXP PCA9685 16-channel, 12-bit PWM controller
// over a serialised register port.
//
// Configure runs the sleep, prescale, restart sequence and verifies the
// prescaler by reading it back. Each step that fails is reported as an
// *InitError naming the step so callers can decide how to classify it.
package pca9685

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"

	"robohal-go/busport"
	"robohal-go/x/convert"
)

const (
	// BaseAddress is the address of board 0; board n answers at BaseAddress+n.
	BaseAddress = 0x40
	// MaxBoards is the number of addresses reachable from BaseAddress before
	// the reserved 0x78..0x7F block.
	MaxBoards = 0x78 - BaseAddress

	Channels   = 16
	Resolution = 4096
	MaxDuty    = Resolution - 1

	// Oscillator is the internal clock.
	Oscillator = 25 * physic.MegaHertz
	// DefaultFrequency suits hobby servos.
	DefaultFrequency = 50 * physic.Hertz
)

var (
	ErrPrescaleMismatch = errors.New("pca9685: prescale read-back mismatch")
	ErrChannel          = errors.New("pca9685: channel out of range")
)

// Step names one stage of Configure.
type Step uint8

const (
	StepSleep Step = iota
	StepPrescale
	StepRestart
	StepVerify
)

func (s Step) String() string {
	switch s {
	case StepSleep:
		return "sleep"
	case StepPrescale:
		return "prescale"
	case StepRestart:
		return "restart"
	case StepVerify:
		return "verify"
	}
	return "unknown"
}

// InitError reports the Configure step that failed.
type InitError struct {
	Step Step
	Err  error
}

func (e *InitError) Error() string { return fmt.Sprintf("pca9685: %s: %v", e.Step, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// Config holds the non-bus settings. Zero fields take defaults.
type Config struct {
	Frequency physic.Frequency // PWM frequency, default 50 Hz
	// Settle is the oscillator start-up wait after restart. Default 500 µs.
	Settle time.Duration
}

// Status is a read-back of the mode and prescale registers.
type Status struct {
	Mode1     byte
	Prescale  byte
	Frequency physic.Frequency
}

// Device is one PCA9685 board.
type Device struct {
	port     busport.Port
	Address  uint16
	cfg      Config
	prescale byte
	buf      [4]byte
}

// New returns a Device for the board at address. It does not touch the bus.
func New(port busport.Port, address uint16) Device {
	return Device{port: port, Address: address}
}

// Configure puts the board in a known state at the configured frequency.
// A frequency the prescaler cannot reach is rejected before any bus traffic.
func (d *Device) Configure(cfg Config) error {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Microsecond
	}
	p, err := convert.Prescale(Oscillator, cfg.Frequency, Resolution)
	if err != nil {
		return err
	}
	d.cfg = cfg
	d.prescale = p

	// The prescaler only latches while the oscillator is asleep.
	if err := d.port.WriteRegister(regMode1, Mode1Sleep|Mode1AI, d.Address); err != nil {
		return &InitError{Step: StepSleep, Err: err}
	}
	if err := d.port.WriteRegister(regPreScale, p, d.Address); err != nil {
		return &InitError{Step: StepPrescale, Err: err}
	}
	if err := d.port.WriteRegister(regMode2, mode2OutDrv, d.Address); err != nil {
		return &InitError{Step: StepPrescale, Err: err}
	}
	if err := d.port.WriteRegister(regMode1, Mode1Restart|Mode1AI, d.Address); err != nil {
		return &InitError{Step: StepRestart, Err: err}
	}
	time.Sleep(cfg.Settle)

	got, err := d.port.ReadRegisters(regPreScale, 1, d.Address)
	if err != nil {
		return &InitError{Step: StepVerify, Err: err}
	}
	if got[0] != p {
		return &InitError{Step: StepVerify, Err: fmt.Errorf("%w: wrote 0x%02x read 0x%02x", ErrPrescaleMismatch, p, got[0])}
	}
	return nil
}

// Prescale returns the prescaler computed by the last Configure.
func (d *Device) Prescale() byte { return d.prescale }

// SetChannel writes the ON and OFF counts of one channel in a single
// auto-increment transaction.
func (d *Device) SetChannel(ch int, on, off uint16) error {
	if ch < 0 || ch >= Channels {
		return ErrChannel
	}
	d.buf = [4]byte{byte(on), byte(on>>8) & 0x1F, byte(off), byte(off>>8) & 0x1F}
	return d.port.WriteRegisters(ChannelRegister(ch), d.buf[:], d.Address)
}

// Status reads MODE1 and PRE_SCALE as two independent transactions.
func (d *Device) Status() (Status, error) {
	m, err := d.port.ReadRegisters(regMode1, 1, d.Address)
	if err != nil {
		return Status{}, err
	}
	p, err := d.port.ReadRegisters(regPreScale, 1, d.Address)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Mode1:     m[0],
		Prescale:  p[0],
		Frequency: convert.PrescaleFrequency(Oscillator, p[0], Resolution),
	}, nil
}
