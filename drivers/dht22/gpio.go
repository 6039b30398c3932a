package dht22

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
)

var ErrTimeout = errors.New("dht22: line timeout")

// Timing holds the protocol timings. Zero fields take defaults.
type Timing struct {
	StartDelay      time.Duration // host start pulse, default 1 ms
	ResponseTimeout time.Duration // max wait for any edge, default 85 µs
	BitThreshold    time.Duration // high pulse longer than this is a 1, default 40 µs
}

func (t Timing) withDefaults() Timing {
	if t.StartDelay <= 0 {
		t.StartDelay = time.Millisecond
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = 85 * time.Microsecond
	}
	if t.BitThreshold <= 0 {
		t.BitThreshold = 40 * time.Microsecond
	}
	return t
}

// GPIOLine bit-bangs the protocol on a periph pin by busy-polling levels.
// It needs a pin with fast reads (memory mapped on the Raspberry Pi).
type GPIOLine struct {
	Pin    gpio.PinIO
	Timing Timing
}

func (l *GPIOLine) Configure() error {
	l.Timing = l.Timing.withDefaults()
	return l.Pin.Out(gpio.High)
}

func (l *GPIOLine) ReadFrame(buf *[FrameLen]byte) error {
	t := l.Timing.withDefaults()
	if err := l.Pin.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(t.StartDelay)
	if err := l.Pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return err
	}

	// Response: sensor pulls low ~80 µs, then high ~80 µs, then low for bit 0.
	for _, lv := range []gpio.Level{gpio.Low, gpio.High, gpio.Low} {
		if _, err := l.waitFor(lv, t.ResponseTimeout); err != nil {
			return err
		}
	}

	*buf = [FrameLen]byte{}
	for i := 0; i < FrameLen*8; i++ {
		if _, err := l.waitFor(gpio.High, t.ResponseTimeout); err != nil {
			return err
		}
		high, err := l.waitFor(gpio.Low, t.ResponseTimeout)
		if err != nil {
			return err
		}
		buf[i/8] <<= 1
		if high > t.BitThreshold {
			buf[i/8] |= 1
		}
	}
	return nil
}

// waitFor spins until the pin reads lv and returns how long that took.
func (l *GPIOLine) waitFor(lv gpio.Level, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	for l.Pin.Read() != lv {
		if time.Since(start) > timeout {
			return 0, ErrTimeout
		}
	}
	return time.Since(start), nil
}
