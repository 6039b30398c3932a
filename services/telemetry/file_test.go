package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robohal-go/errcode"
	"robohal-go/x/timex"
)

var fileT0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestFileSinkAppendsTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.log")
	require.NoError(t, os.WriteFile(path, []byte("earlier line\n"), 0o644))

	clk := timex.NewManual(fileT0)
	s, err := NewFileSink(FileConfig{Path: path, Clock: clk})
	require.NoError(t, err)
	id := uint8(1)
	require.NoError(t, s.Publish(report(&id)))
	clk.Advance(2 * time.Second)
	require.NoError(t, s.Publish(report(nil)))
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	require.Equal(t, "earlier line", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "2024-05-01 12:00:00 {"), lines[1])
	require.True(t, strings.HasPrefix(lines[2], "2024-05-01 12:00:02 {"), lines[2])

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "2024-05-01 12:00:00 ")), &got))
	require.Equal(t, "pca9685", got["device"])
	require.Equal(t, "updated", got["state"])
	require.EqualValues(t, 1, got["id"])
}

func TestFileSinkReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.log")
	for i := 0; i < 2; i++ {
		s, err := NewFileSink(FileConfig{Path: path, Clock: timex.NewManual(fileT0)})
		require.NoError(t, err)
		require.NoError(t, s.Publish(report(nil)))
		require.NoError(t, s.Close())
	}
	require.Len(t, readLines(t, path), 2)
}

// gateWriter blocks every Write until release is closed.
type gateWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	lines  []string
	closed bool
}

func newGateWriter() *gateWriter {
	return &gateWriter{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateWriter) Write(p []byte) (int, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lines = append(g.lines, string(p))
	return len(p), nil
}

func (g *gateWriter) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func TestFileSinkRejectsWhenQueueFull(t *testing.T) {
	w := newGateWriter()
	s := newFileSink(w, FileConfig{Path: "mem", MaxPending: 2, Clock: timex.NewManual(fileT0)})

	// The first line is taken by the writer, which then blocks.
	require.NoError(t, s.Publish(report(nil)))
	<-w.entered
	require.NoError(t, s.Publish(report(nil)))
	require.NoError(t, s.Publish(report(nil)))

	err := s.Publish(report(nil))
	require.Equal(t, errcode.Resource, errcode.Of(err))

	close(w.release)
	require.NoError(t, s.Close())
	require.Len(t, w.lines, 3)
	require.True(t, w.closed)
}

func TestFileSinkCloseDrainsQueue(t *testing.T) {
	w := newGateWriter()
	s := newFileSink(w, FileConfig{Path: "mem", MaxPending: 8, Clock: timex.NewManual(fileT0)})
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Publish(report(nil)))
	}
	<-w.entered

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	close(w.release)
	require.NoError(t, <-closed)
	require.Len(t, w.lines, 5)
	for _, l := range w.lines {
		require.True(t, strings.HasPrefix(l, "2024-05-01 12:00:00 "), l)
		require.True(t, strings.HasSuffix(l, "}\n"), l)
	}

	err := s.Publish(report(nil))
	require.Equal(t, errcode.NotReady, errcode.Of(err))
	require.NoError(t, s.Close())
}

func TestNewFileSinkErrors(t *testing.T) {
	_, err := NewFileSink(FileConfig{})
	require.Equal(t, errcode.Configuration, errcode.Of(err))

	_, err = NewFileSink(FileConfig{Path: filepath.Join(t.TempDir(), "missing", "reports.log")})
	require.Equal(t, errcode.Resource, errcode.Of(err))
}
