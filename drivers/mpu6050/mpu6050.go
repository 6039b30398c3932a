// Package mpu6050 drives the InvenSense MPU-6050 accelerometer and gyroscope
// over a serialised register port.
//
//	d := mpu6050.New(port, mpu6050.Address)
//	if err := d.Configure(mpu6050.Config{}); err != nil { ... }
//	s, err := d.Read() // accel in g, gyro in °/s
//
// Configure failures are *InitError values naming the step.
package mpu6050

import (
	"errors"
	"fmt"
	"time"

	"robohal-go/busport"
	"robohal-go/x/convert"
)

const (
	Address = 0x68
	WhoAmI  = 0x68
)

var (
	ErrWhoAmI = errors.New("mpu6050: who_am_i mismatch")
	ErrRange  = errors.New("mpu6050: invalid range")
)

// Step names one stage of Configure.
type Step uint8

const (
	StepPowerOn Step = iota
	StepReset
	StepWake
	StepSampleRate
	StepFilter
	StepGyroRange
	StepAccelRange
	StepIdentify
)

var stepNames = [...]string{"power_on", "reset", "wake", "sample_rate", "filter", "gyro_range", "accel_range", "identify"}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

// InitError reports the Configure step that failed.
type InitError struct {
	Step Step
	Err  error
}

func (e *InitError) Error() string { return fmt.Sprintf("mpu6050: %s: %v", e.Step, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// Config holds the measurement settings. Every zero value is a valid
// register setting (Range0 is the narrowest range), so callers that want the
// robot's settings start from DefaultConfig.
type Config struct {
	SampleRateDivider byte  // sample rate = 1 kHz / (1 + divider) with DLPF on
	DLPF              byte  // DLPF_CFG, 0..6
	GyroRange         Range // Range3 in DefaultConfig
	AccelRange        Range // Range3 in DefaultConfig
	// ResetDelay is the wait after a device reset. Zero means 100 ms.
	ResetDelay time.Duration
}

// DefaultConfig returns the settings used on the robot.
func DefaultConfig() Config {
	return Config{
		SampleRateDivider: 9,
		DLPF:              DLPF44Hz,
		GyroRange:         Range3,
		AccelRange:        Range3,
		ResetDelay:        100 * time.Millisecond,
	}
}

// Raw is one unconverted sample.
type Raw struct {
	Accel [3]int16
	Gyro  [3]int16
}

// Sample is one converted sample.
type Sample struct {
	Accel [3]float64 // g
	Gyro  [3]float64 // °/s
}

// Device is one MPU-6050.
type Device struct {
	port    busport.Port
	Address uint16
	cfg     Config
}

// New returns a Device. It does not touch the bus.
func New(port busport.Port, address uint16) Device {
	if address == 0 {
		address = Address
	}
	return Device{port: port, Address: address, cfg: DefaultConfig()}
}

// Configure resets the part, applies cfg and checks WHO_AM_I last.
func (d *Device) Configure(cfg Config) error {
	if !cfg.GyroRange.Valid() || !cfg.AccelRange.Valid() {
		return ErrRange
	}
	if cfg.DLPF > DLPF5Hz {
		return fmt.Errorf("mpu6050: dlpf %d out of range", cfg.DLPF)
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = 100 * time.Millisecond
	}
	d.cfg = cfg

	steps := []struct {
		s   Step
		reg byte
		v   byte
	}{
		{StepPowerOn, regPwrMgmt1, pwrAwake},
		{StepReset, regPwrMgmt1, pwrReset},
		{StepWake, regPwrMgmt1, pwrAwake},
		{StepSampleRate, regSmplrtDiv, cfg.SampleRateDivider},
		{StepFilter, regConfig, cfg.DLPF},
		{StepGyroRange, regGyroConfig, cfg.GyroRange.bits()},
		{StepAccelRange, regAccelConfig, cfg.AccelRange.bits()},
	}
	for _, st := range steps {
		if err := d.port.WriteRegister(st.reg, st.v, d.Address); err != nil {
			return &InitError{Step: st.s, Err: err}
		}
		if st.s == StepReset {
			time.Sleep(cfg.ResetDelay)
		}
	}

	id, err := d.port.ReadRegisters(regWhoAmI, 1, d.Address)
	if err != nil {
		return &InitError{Step: StepIdentify, Err: err}
	}
	if id[0] != WhoAmI {
		return &InitError{Step: StepIdentify, Err: fmt.Errorf("%w: got 0x%02x", ErrWhoAmI, id[0])}
	}
	return nil
}

// ReadRaw reads the accelerometer and gyroscope blocks. Either read can
// fail independently; nothing is returned unless both succeed.
func (d *Device) ReadRaw() (Raw, error) {
	var r Raw
	a, err := d.port.ReadRegisters(regAccelXOutH, 6, d.Address)
	if err != nil {
		return r, err
	}
	g, err := d.port.ReadRegisters(regGyroXOutH, 6, d.Address)
	if err != nil {
		return r, err
	}
	if r.Accel, err = convert.Axes(a); err != nil {
		return Raw{}, err
	}
	if r.Gyro, err = convert.Axes(g); err != nil {
		return Raw{}, err
	}
	return r, nil
}

// Read returns a converted sample using the configured ranges.
func (d *Device) Read() (Sample, error) {
	r, err := d.ReadRaw()
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Accel: convert.Scale(r.Accel, d.cfg.AccelRange.AccelSensitivity()),
		Gyro:  convert.Scale(r.Gyro, d.cfg.GyroRange.GyroSensitivity()),
	}, nil
}
