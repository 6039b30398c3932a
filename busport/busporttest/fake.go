// Package busporttest provides an in-memory I2C bus for tests. Each address
// is a 256-byte register file with auto-increment, which is how the PWM
// driver and the inertial sensor behave.
package busporttest

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// ErrNack is returned for addresses marked absent.
var ErrNack = errors.New("busporttest: nack")

// IO is one recorded transaction.
type IO struct {
	Addr uint16
	W    []byte
	R    []byte
}

// Bus is a fake drivers.I2C. The zero value is ready to use; every address
// responds unless marked absent.
type Bus struct {
	mu     sync.Mutex
	regs   map[uint16]*[256]byte
	ptr    map[uint16]byte
	absent map[uint16]bool
	log    []IO
	speed  physic.Frequency

	// Fail, when set, is consulted before every transaction. A non-nil
	// result is returned without touching the register file.
	Fail func(io IO) error
	// OnWrite, when set, runs after a register write has been applied.
	OnWrite func(addr uint16, reg byte, data []byte)
}

func (b *Bus) init() {
	if b.regs == nil {
		b.regs = map[uint16]*[256]byte{}
		b.ptr = map[uint16]byte{}
		b.absent = map[uint16]bool{}
	}
}

func (b *Bus) file(addr uint16) *[256]byte {
	f := b.regs[addr]
	if f == nil {
		f = new([256]byte)
		b.regs[addr] = f
	}
	return f
}

// Tx implements drivers.I2C.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.init()
	io := IO{Addr: addr, W: append([]byte(nil), w...)}
	if b.absent[addr] {
		b.log = append(b.log, io)
		b.mu.Unlock()
		return ErrNack
	}
	if b.Fail != nil {
		if err := b.Fail(io); err != nil {
			b.log = append(b.log, io)
			b.mu.Unlock()
			return err
		}
	}
	f := b.file(addr)
	var (
		wrote   bool
		wreg    byte
		payload []byte
	)
	if len(w) > 0 {
		b.ptr[addr] = w[0]
		if len(w) > 1 {
			wrote, wreg, payload = true, w[0], append([]byte(nil), w[1:]...)
			p := w[0]
			for _, v := range w[1:] {
				f[p] = v
				p++
			}
		}
	}
	if len(r) > 0 {
		p := b.ptr[addr]
		for i := range r {
			r[i] = f[p]
			p++
		}
		b.ptr[addr] = p
		io.R = append([]byte(nil), r...)
	}
	b.log = append(b.log, io)
	hook := b.OnWrite
	b.mu.Unlock()

	if wrote && hook != nil {
		hook(addr, wreg, payload)
	}
	return nil
}

// SetSpeed records the requested clock.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	b.speed = f
	b.mu.Unlock()
	return nil
}

// Speed returns the last clock passed to SetSpeed.
func (b *Bus) Speed() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// Set preloads register values at addr starting at reg.
func (b *Bus) Set(addr uint16, reg byte, vals ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	f := b.file(addr)
	for _, v := range vals {
		f[reg] = v
		reg++
	}
}

// Reg returns the current value of one register.
func (b *Bus) Reg(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	return b.file(addr)[reg]
}

// SetAbsent makes addr NACK every transaction (or respond again).
func (b *Bus) SetAbsent(addr uint16, absent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	b.absent[addr] = absent
}

// Log returns a copy of all recorded transactions.
func (b *Bus) Log() []IO {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]IO(nil), b.log...)
}

// Count returns the number of recorded transactions.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

// Writes returns the recorded transactions to addr that carried register
// data (a pointer byte plus at least one value).
func (b *Bus) Writes(addr uint16) []IO {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []IO
	for _, io := range b.log {
		if io.Addr == addr && len(io.W) > 1 {
			out = append(out, io)
		}
	}
	return out
}

// ResetLog drops the recorded transactions.
func (b *Bus) ResetLog() {
	b.mu.Lock()
	b.log = nil
	b.mu.Unlock()
}

// FailWrites returns a Fail hook that rejects writes to reg at addr.
func FailWrites(addr uint16, reg byte, err error) func(IO) error {
	return func(io IO) error {
		if io.Addr == addr && len(io.W) > 1 && io.W[0] == reg {
			return err
		}
		return nil
	}
}

// FailReads returns a Fail hook that rejects register reads of reg at addr.
func FailReads(addr uint16, reg byte, err error) func(IO) error {
	return func(io IO) error {
		if io.Addr == addr && len(io.W) == 1 && io.W[0] == reg {
			return err
		}
		return nil
	}
}
