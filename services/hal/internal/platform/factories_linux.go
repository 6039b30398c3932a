//go:build linux

package platform

import (
	"fmt"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"robohal-go/drivers/dht22"
)

// Open loads the periph host drivers. It is safe to call more than once.
func Open() (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("platform: host init: %w", err)
	}
	return &Host{}, nil
}

// I2C opens a bus by periph name ("1", "/dev/i2c-1", "I2C1"). An empty
// name opens the first bus found.
func (h *Host) I2C(name string) (drivers.I2C, error) {
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("platform: i2c %q: %w", name, err)
	}
	h.track(b)
	return b, nil
}

// Line returns the single-wire sensor line on a GPIO pin ("GPIO4").
func (h *Host) Line(pin string) (dht22.Line, error) {
	p := gpioreg.ByName(pin)
	if p == nil {
		return nil, fmt.Errorf("platform: unknown pin %q", pin)
	}
	return &dht22.GPIOLine{Pin: p}, nil
}
