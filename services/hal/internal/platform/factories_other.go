//go:build !linux

package platform

import (
	"errors"

	"tinygo.org/x/drivers"

	"robohal-go/drivers/dht22"
)

// ErrUnsupported is returned on targets without periph host drivers.
var ErrUnsupported = errors.New("platform: no host hardware on this target")

func Open() (*Host, error) { return nil, ErrUnsupported }

func (h *Host) I2C(string) (drivers.I2C, error) { return nil, ErrUnsupported }

func (h *Host) Line(string) (dht22.Line, error) { return nil, ErrUnsupported }
