package hal

import "robohal-go/services/hal/internal/platform"

// HostHardware is the hardware of the machine the process runs on.
type HostHardware interface {
	Hardware
	Close() error
}

// OpenHost loads the host drivers. It fails on targets without them.
func OpenHost() (HostHardware, error) {
	h, err := platform.Open()
	if err != nil {
		return nil, err
	}
	return h, nil
}
