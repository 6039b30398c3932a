package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/exp/slog"

	"robohal-go/errcode"
	"robohal-go/types"
	"robohal-go/x/timex"
)

// DefaultMaxPending is the file sink queue depth when none is configured.
const DefaultMaxPending = 16

// FileTimeLayout prefixes every line the file sink writes.
const FileTimeLayout = "2006-01-02 15:04:05"

type FileConfig struct {
	Path       string
	MaxPending int // default DefaultMaxPending
	Clock      timex.Clock
	Logger     *slog.Logger
}

// FileSink appends one "<time> <json report>" line per report to a file.
// Publish only queues the line; a single writer goroutine owns the file.
// When MaxPending lines are already queued Publish fails with
// resource_error and the report is dropped.
type FileSink struct {
	clock timex.Clock
	log   *slog.Logger
	w     io.WriteCloser
	q     chan []byte
	done  chan struct{}

	mu     sync.RWMutex // guards closed against the close of q
	closed bool
	once   sync.Once
	err    error
}

// NewFileSink opens path for appending, creating it if needed, and starts
// the writer.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	const op = "telemetry.file"
	if cfg.Path == "" {
		return nil, errcode.New(errcode.Configuration, op, "no path")
	}
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errcode.Wrap(errcode.Resource, op, err)
	}
	return newFileSink(f, cfg), nil
}

func newFileSink(w io.WriteCloser, cfg FileConfig) *FileSink {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &FileSink{
		clock: timex.Or(cfg.Clock),
		log:   log.With("svc", "telemetry", "sink", "file", "path", cfg.Path),
		w:     w,
		q:     make(chan []byte, cfg.MaxPending),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish stamps r with the current time and queues it without blocking.
func (s *FileSink) Publish(r types.Report) error {
	const op = "telemetry.file.publish"
	body, err := json.Marshal(r)
	if err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	line := make([]byte, 0, len(FileTimeLayout)+len(body)+2)
	line = s.clock.Now().AppendFormat(line, FileTimeLayout)
	line = append(line, ' ')
	line = append(append(line, body...), '\n')

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errcode.New(errcode.NotReady, op, "sink closed")
	}
	select {
	case s.q <- line:
		return nil
	default:
		return errcode.New(errcode.Resource, op, fmt.Sprintf("%d writes pending", cap(s.q)))
	}
}

func (s *FileSink) run() {
	defer close(s.done)
	for line := range s.q {
		if _, err := s.w.Write(line); err != nil {
			s.log.Warn("write failed", "err", err)
		}
	}
}

// Close stops accepting reports, writes out everything already queued and
// closes the file.
func (s *FileSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.q)
		s.mu.Unlock()
		<-s.done
		s.err = s.w.Close()
	})
	return s.err
}
