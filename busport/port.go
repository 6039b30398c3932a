// Package busport is the shared bus-transaction primitive the I2C peripheral
// drivers talk through.
//
// A Serial port wraps one physical bus (anything with the tinygo
// drivers.I2C Tx shape: machine.I2C on MCUs, periph i2c.Bus on Linux) and
// guarantees that at most one transaction is in flight. Every operation is
// synchronous: it returns when the transaction completes or when the port
// timeout elapses. Nothing is retried here.
package busport

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"robohal-go/errcode"
)

// Port is the consumed bus interface.
type Port interface {
	// WriteByte sends a single byte (command or register pointer).
	WriteByte(value byte, addr uint16) error
	// WriteRegister writes one register.
	WriteRegister(reg, value byte, addr uint16) error
	// WriteRegisters writes len(data) consecutive registers in one transaction.
	WriteRegisters(reg byte, data []byte, addr uint16) error
	// ReadRegisters reads n consecutive registers starting at reg.
	ReadRegisters(reg byte, n int, addr uint16) ([]byte, error)
	// Configure applies pin and clock settings. Repeated calls with the same
	// settings are no-ops.
	Configure(cfg Config) error
}

// Config is the one-time bus setup.
type Config struct {
	SCL       string // clock pin name, informational on hosts with fixed pins
	SDA       string // data pin name
	Frequency physic.Frequency
}

const (
	// DefaultFrequency is standard-mode I2C.
	DefaultFrequency = 100 * physic.KiloHertz
	// DefaultTimeout bounds one transaction when Options.Timeout is zero.
	DefaultTimeout = 25 * time.Millisecond
)

// Options tune a Serial port. All fields are optional.
type Options struct {
	// Timeout bounds one transaction. Zero selects DefaultTimeout; negative
	// disables the bound (the call blocks for as long as the bus does).
	Timeout time.Duration
}

// Stats counts transactions since construction.
type Stats struct {
	Tx       uint32
	Errors   uint32
	Timeouts uint32
}

type speedSetter interface {
	SetSpeed(f physic.Frequency) error
}

// Serial implements Port over a drivers.I2C, serialising all access.
type Serial struct {
	bus     drivers.I2C
	timeout time.Duration

	mu         sync.Mutex
	hung       chan struct{} // closed once a timed-out Tx finally returns
	configured bool
	cfg        Config
	stats      Stats
}

var _ Port = (*Serial)(nil)

// New wraps bus. The bus must outlive the port.
func New(bus drivers.I2C, opts Options) *Serial {
	t := opts.Timeout
	if t == 0 {
		t = DefaultTimeout
	}
	return &Serial{bus: bus, timeout: t}
}

// Configure applies cfg once. A different configuration after the first
// successful call is rejected: the bus is shared and already clocked.
func (s *Serial) Configure(cfg Config) error {
	const op = "configure"
	if cfg.Frequency <= 0 {
		return errcode.New(errcode.Configuration, op, "frequency must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		if s.cfg != cfg {
			return errcode.New(errcode.Configuration, op,
				fmt.Sprintf("bus already configured at %s", s.cfg.Frequency))
		}
		return nil
	}
	if ss, ok := s.bus.(speedSetter); ok {
		if err := ss.SetSpeed(cfg.Frequency); err != nil {
			return errcode.Wrap(errcode.Transport, op, err)
		}
	}
	s.cfg = cfg
	s.configured = true
	return nil
}

func (s *Serial) WriteByte(value byte, addr uint16) error {
	return s.tx("write_byte", addr, []byte{value}, nil)
}

func (s *Serial) WriteRegister(reg, value byte, addr uint16) error {
	return s.tx("write_register", addr, []byte{reg, value}, nil)
}

func (s *Serial) WriteRegisters(reg byte, data []byte, addr uint16) error {
	w := make([]byte, 1+len(data))
	w[0] = reg
	copy(w[1:], data)
	return s.tx("write_registers", addr, w, nil)
}

func (s *Serial) ReadRegisters(reg byte, n int, addr uint16) ([]byte, error) {
	if n <= 0 {
		return nil, errcode.New(errcode.Configuration, "read_registers", "count must be positive")
	}
	r := make([]byte, n)
	if err := s.tx("read_registers", addr, []byte{reg}, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Stats returns a copy of the transaction counters.
func (s *Serial) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Serial) tx(op string, addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Tx++

	if s.timeout < 0 {
		return s.result(op, addr, s.bus.Tx(addr, w, r))
	}

	// A previous transaction timed out but the bus has not returned yet.
	if s.hung != nil {
		t := time.NewTimer(s.timeout)
		select {
		case <-s.hung:
			t.Stop()
			s.hung = nil
		case <-t.C:
			return s.result(op, addr, errcode.Timeout)
		}
	}

	// Private buffers: a timed-out Tx may still be touching them.
	wb := append([]byte(nil), w...)
	var rb []byte
	if len(r) > 0 {
		rb = make([]byte, len(r))
	}
	done := make(chan error, 1)
	go func() { done <- s.bus.Tx(addr, wb, rb) }()

	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case err := <-done:
		if err == nil {
			copy(r, rb)
		}
		return s.result(op, addr, err)
	case <-t.C:
		hung := make(chan struct{})
		go func() {
			<-done
			close(hung)
		}()
		s.hung = hung
		return s.result(op, addr, errcode.Timeout)
	}
}

// result must be called with s.mu held.
func (s *Serial) result(op string, addr uint16, err error) error {
	if err == nil {
		return nil
	}
	s.stats.Errors++
	if err == errcode.Timeout {
		s.stats.Timeouts++
	}
	return &errcode.E{
		C:   errcode.Transport,
		Op:  op,
		Msg: fmt.Sprintf("addr 0x%02x", addr),
		Err: err,
	}
}
