// Package dht22 decodes the DHT22 (AM2302) single-wire temperature and
// humidity sensor. Bit timing lives behind Line; the package itself only
// sequences the line and validates the 40-bit frame.
package dht22

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"robohal-go/x/convert"
)

// FrameLen is the frame size in bytes: humidity (2), temperature (2),
// checksum (1).
const FrameLen = 5

var (
	ErrChecksum = errors.New("dht22: checksum mismatch")
	ErrRange    = errors.New("dht22: humidity out of range")
)

// Line is the data pin with its bit-level protocol.
type Line interface {
	// Configure prepares the pin (idle high).
	Configure() error
	// ReadFrame issues a start pulse and reads one frame.
	ReadFrame(buf *[FrameLen]byte) error
}

// Step names one stage of Configure.
type Step uint8

const (
	StepLine Step = iota
	StepFirstRead
	StepChecksum
)

func (s Step) String() string {
	switch s {
	case StepLine:
		return "line"
	case StepFirstRead:
		return "first_read"
	case StepChecksum:
		return "checksum"
	}
	return "unknown"
}

// InitError reports the Configure step that failed.
type InitError struct {
	Step Step
	Err  error
}

func (e *InitError) Error() string { return fmt.Sprintf("dht22: %s: %v", e.Step, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// Sample is one decoded measurement.
type Sample struct {
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
}

// Device is one sensor on one line.
type Device struct {
	line Line
	buf  [FrameLen]byte
}

func New(line Line) Device { return Device{line: line} }

// Configure sets up the line and proves the sensor answers with a valid
// frame.
func (d *Device) Configure() error {
	if err := d.line.Configure(); err != nil {
		return &InitError{Step: StepLine, Err: err}
	}
	if err := d.line.ReadFrame(&d.buf); err != nil {
		return &InitError{Step: StepFirstRead, Err: err}
	}
	if _, err := Decode(d.buf); err != nil {
		return &InitError{Step: StepChecksum, Err: err}
	}
	return nil
}

// Read performs one measurement.
func (d *Device) Read() (Sample, error) {
	if err := d.line.ReadFrame(&d.buf); err != nil {
		return Sample{}, err
	}
	return Decode(d.buf)
}

// Checksum is the low byte of the sum of the four data bytes.
func Checksum(f [FrameLen]byte) byte { return f[0] + f[1] + f[2] + f[3] }

// Decode validates and converts a frame. A frame whose checksum holds but
// whose humidity is above 100 %RH is rejected with ErrRange.
func Decode(f [FrameLen]byte) (Sample, error) {
	if sum := Checksum(f); sum != f[4] {
		return Sample{}, fmt.Errorf("%w: computed 0x%02x frame 0x%02x", ErrChecksum, sum, f[4])
	}
	h, err := convert.Humidity(convert.DeciValue(f[0], f[1]))
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrRange, err)
	}
	return Sample{
		Humidity:    h,
		Temperature: convert.Temperature(convert.DeciValue(f[2], f[3])),
	}, nil
}
