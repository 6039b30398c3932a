package types

import (
	"errors"
	"strings"
)

// State is the authoritative condition of one peripheral instance.
// The set is closed: every observed value is one of the constants below.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateUpdated

	// Error variants. Exactly one is current; the newest failure wins.
	StatePowerOnError
	StateResetError
	StateTransportError
	StateVerificationError
	StateError

	stateCount
)

var stateNames = [stateCount]string{
	StateUninitialized:     "uninitialized",
	StateReady:             "ready",
	StateUpdated:           "updated",
	StatePowerOnError:      "power_on_error",
	StateResetError:        "reset_error",
	StateTransportError:    "transport_error",
	StateVerificationError: "verification_error",
	StateError:             "error",
}

func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return "invalid"
}

// Valid reports whether s is one of the named states.
func (s State) Valid() bool { return s < stateCount }

// IsError reports whether s is any error variant.
func (s State) IsError() bool { return s >= StatePowerOnError && s < stateCount }

// Operational reports whether the device accepts reads and commands.
func (s State) Operational() bool { return s == StateReady || s == StateUpdated }

// HasFreshData reports whether the last reading may be consumed.
func (s State) HasFreshData() bool { return s == StateUpdated }

var errUnknownState = errors.New("types: unknown state")

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errUnknownState
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(b []byte) error {
	name := strings.TrimSpace(string(b))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return errUnknownState
}

// States lists the closed set in declaration order.
func States() []State {
	out := make([]State, 0, stateCount)
	for s := State(0); s < stateCount; s++ {
		out = append(out, s)
	}
	return out
}
