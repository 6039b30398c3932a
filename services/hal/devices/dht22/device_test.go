package dht22dev

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robohal-go/drivers/dht22"
	"robohal-go/errcode"
	"robohal-go/services/hal/internal/core"
	"robohal-go/types"
	"robohal-go/x/timex"
)

type scriptLine struct {
	cfgErr  error
	readErr error
	frame   [dht22.FrameLen]byte
	reads   int
}

func (l *scriptLine) Configure() error { return l.cfgErr }

func (l *scriptLine) ReadFrame(buf *[dht22.FrameLen]byte) error {
	l.reads++
	if l.readErr != nil {
		return l.readErr
	}
	*buf = l.frame
	return nil
}

func frame(b0, b1, b2, b3 byte) [dht22.FrameLen]byte {
	return [dht22.FrameLen]byte{b0, b1, b2, b3, b0 + b1 + b2 + b3}
}

func newDevice(t *testing.T, line *scriptLine) (*Device, *timex.Manual) {
	t.Helper()
	clk := timex.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	d, err := New(Config{
		Line:   line,
		Policy: core.Policy{MaxRetries: 5, InitialInterval: 15 * time.Second},
		Clock:  clk,
	})
	require.NoError(t, err)
	return d, clk
}

func TestInitStateMapping(t *testing.T) {
	boom := errors.New("boom")
	bad := frame(1, 2, 3, 4)
	bad[4]++
	cases := []struct {
		name  string
		line  *scriptLine
		state types.State
		code  errcode.Code
	}{
		{"line", &scriptLine{cfgErr: boom}, types.StateTransportError, errcode.Transport},
		{"first_read", &scriptLine{readErr: dht22.ErrTimeout}, types.StateTransportError, errcode.Transport},
		{"checksum", &scriptLine{frame: bad}, types.StateVerificationError, errcode.Verification},
		{"ok", &scriptLine{frame: frame(1, 2, 3, 4)}, types.StateReady, errcode.OK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, _ := newDevice(t, c.line)
			require.Equal(t, c.code, errcode.Of(d.Init()))
			require.Equal(t, c.state, d.State())
		})
	}
}

func TestReadConverts(t *testing.T) {
	line := &scriptLine{frame: frame(0x02, 0x8C, 0x01, 0x5F)}
	d, _ := newDevice(t, line)
	require.NoError(t, d.Init())

	r, err := d.Read()
	require.NoError(t, err)
	require.InDelta(t, 35.1, r.TemperatureC, 1e-6)
	require.InDelta(t, 95.18, r.TemperatureF, 1e-6)
	require.InDelta(t, 65.2, r.Humidity, 1e-6)
	require.Equal(t, types.StateUpdated, d.State())
	require.Equal(t, Name, d.Report().Device)
}

func TestReadChecksumFailure(t *testing.T) {
	line := &scriptLine{frame: frame(0x02, 0x8C, 0x01, 0x5F)}
	d, clk := newDevice(t, line)
	require.NoError(t, d.Init())
	good, err := d.Read()
	require.NoError(t, err)

	line.frame[4]++
	_, err = d.Read()
	require.Equal(t, errcode.Verification, errcode.Of(err))
	require.ErrorIs(t, err, dht22.ErrChecksum)
	require.Equal(t, types.StateError, d.State())
	require.Equal(t, good, d.Report().Reading)

	line.frame[4]--
	clk.Advance(15 * time.Second)
	d.Recover()
	require.Equal(t, types.StateReady, d.State())
}

func TestReadRejectsImpossibleHumidity(t *testing.T) {
	line := &scriptLine{frame: frame(0x02, 0x8C, 0x01, 0x5F)}
	d, _ := newDevice(t, line)
	require.NoError(t, d.Init())
	good, err := d.Read()
	require.NoError(t, err)

	// 102.0 %RH, checksum intact
	line.frame = frame(0x03, 0xFC, 0x01, 0x5F)
	_, err = d.Read()
	require.Equal(t, errcode.Verification, errcode.Of(err))
	require.ErrorIs(t, err, dht22.ErrRange)
	require.Equal(t, types.StateError, d.State())
	rep := d.Report()
	require.False(t, rep.Fresh)
	require.Equal(t, good, rep.Reading)
}

func TestNewRequiresLine(t *testing.T) {
	_, err := New(Config{})
	require.Equal(t, errcode.Configuration, errcode.Of(err))
}
