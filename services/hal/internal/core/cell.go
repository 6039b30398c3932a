// Package core is the peripheral state and recovery engine: the per-device
// state machine (Cell), the backoff schedule (Policy, Step) and the
// multi-instance registry.
package core

import (
	"sync"
	"time"

	"robohal-go/errcode"
	"robohal-go/types"
	"robohal-go/x/timex"
)

// Snapshot is a consistent copy of a cell.
type Snapshot[R any] struct {
	State   types.State
	Reading R
	// Fresh is true only when State is StateUpdated; Reading is otherwise
	// the last good value (or zero) and must not be used as data.
	Fresh   bool
	Backoff Backoff
	Err     error
}

// NextAttempt returns when the next recovery attempt becomes due, or the
// zero time when the snapshot is not in an error state.
func (s Snapshot[R]) NextAttempt() time.Time {
	if !s.State.IsError() {
		return time.Time{}
	}
	return s.Backoff.LastAttempt.Add(s.Backoff.Interval)
}

// Cell is the state machine of one device instance. All mutating methods
// belong to the device's owning task; Snapshot and State are safe from any
// goroutine.
type Cell[R any] struct {
	policy Policy
	clock  timex.Clock

	mu      sync.RWMutex
	state   types.State
	reading R
	backoff Backoff
	cause   error
}

// NewCell returns an uninitialised cell. A nil clock means the wall clock.
func NewCell[R any](p Policy, clk timex.Clock) *Cell[R] {
	p = p.Normalize()
	return &Cell[R]{policy: p, clock: timex.Or(clk), backoff: p.Fresh()}
}

func (c *Cell[R]) State() types.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Cell[R]) Policy() Policy { return c.policy }

func (c *Cell[R]) Snapshot() Snapshot[R] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot[R]{
		State:   c.state,
		Reading: c.reading,
		Fresh:   c.state.HasFreshData(),
		Backoff: c.backoff,
		Err:     c.cause,
	}
}

// Init runs the initial bring-up. fn returns the state to enter on failure
// along with the error; a nil error means ready.
func (c *Cell[R]) Init(fn func() (types.State, error)) error {
	failState, err := fn()
	if err != nil {
		c.fail(failState, err)
		return err
	}
	c.mu.Lock()
	c.state = types.StateReady
	c.backoff = c.policy.Fresh()
	c.cause = nil
	c.mu.Unlock()
	return nil
}

// Read runs fn only when the device is ready or updated; otherwise it
// returns not_ready without side effects. A failed fn moves the cell to
// StateError; a successful one replaces the reading and marks it updated.
func (c *Cell[R]) Read(fn func() (R, error)) (R, error) {
	var zero R
	if st := c.State(); !st.Operational() {
		return zero, errcode.New(errcode.NotReady, "read", "state "+st.String())
	}
	r, err := fn()
	if err != nil {
		c.fail(types.StateError, err)
		return zero, err
	}
	c.mu.Lock()
	c.reading = r
	c.state = types.StateUpdated
	c.mu.Unlock()
	return r, nil
}

// Fail records a failure outside Init and Read, e.g. a command that hit a
// bus error.
func (c *Cell[R]) Fail(s types.State, err error) { c.fail(s, err) }

func (c *Cell[R]) fail(s types.State, err error) {
	if !s.IsError() {
		s = types.StateError
	}
	now := c.clock.Now()
	c.mu.Lock()
	if !c.state.IsError() {
		// The first recovery attempt waits one full interval from here.
		c.backoff.LastAttempt = now
	}
	c.state = s
	c.cause = err
	c.mu.Unlock()
}

// Recover runs one recovery tick. reinit is the same step sequence as Init.
// It reports whether an attempt was made and, if it failed, why.
func (c *Cell[R]) Recover(reinit func() (types.State, error)) (bool, error) {
	c.mu.RLock()
	st, b := c.state, c.backoff
	c.mu.RUnlock()

	var cause error
	next, nb, attempted := Step(c.policy, st, b, c.clock.Now(), func() types.State {
		s, err := reinit()
		if err != nil {
			cause = err
			if !s.IsError() {
				s = types.StateError
			}
			return s
		}
		return types.StateReady
	})
	if !attempted {
		return false, nil
	}
	c.mu.Lock()
	c.state = next
	c.backoff = nb
	c.cause = cause
	c.mu.Unlock()
	return true, cause
}

