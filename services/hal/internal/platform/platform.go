// Package platform opens the host's buses and pins by name. On Linux it uses
// the periph host drivers; other targets have no host hardware.
package platform

import (
	"errors"
	"io"
	"sync"
)

// Host hands out buses and pins and closes the buses it opened.
type Host struct {
	mu      sync.Mutex
	closers []io.Closer
}

func (h *Host) track(c io.Closer) {
	h.mu.Lock()
	h.closers = append(h.closers, c)
	h.mu.Unlock()
}

// Close releases every bus opened through h.
func (h *Host) Close() error {
	h.mu.Lock()
	cs := h.closers
	h.closers = nil
	h.mu.Unlock()
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
