// Package errcode holds the stable, machine-readable error identifiers used
// across the HAL. A Code is a string newtype: comparable, allocation-free and
// usable directly as an error.
package errcode

import "errors"

// Code is a stable error identifier.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Bus level: no ack, timeout, contention.
	Transport Code = "transport_error"
	// Caller bugs: unknown id, bad mask, out of range value. Never retried.
	Configuration Code = "configuration_error"
	// Device answered but is not the part we expected.
	Verification Code = "verification_error"
	// The registry could not take another unit.
	Resource Code = "resource_error"
	// Lookup failure.
	NotFound Code = "not_found"
	// Device exists but is not in a state that accepts the operation.
	NotReady Code = "not_ready"
	Timeout  Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and a cause alongside the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Transport) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap returns an *E with the given code, operation and cause.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// New returns an *E with a message and no cause.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	// The outermost *E wins over any Code deeper in its cause chain.
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
