package core

import (
	"testing"
	"time"

	"robohal-go/types"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() Policy {
	return Policy{MaxRetries: 3, InitialInterval: 10 * time.Second, MaxInterval: 40 * time.Second}
}

func failWith(s types.State, calls *int) func() types.State {
	return func() types.State { *calls++; return s }
}

func TestStepIgnoresHealthyStates(t *testing.T) {
	p := testPolicy()
	for _, s := range []types.State{types.StateUninitialized, types.StateReady, types.StateUpdated} {
		calls := 0
		b := p.Fresh()
		ns, nb, attempted := Step(p, s, b, t0.Add(time.Hour), failWith(types.StateError, &calls))
		if attempted || calls != 0 || ns != s || nb != b {
			t.Fatalf("%v: touched (attempted=%v calls=%d)", s, attempted, calls)
		}
	}
}

func TestStepWaitsForInterval(t *testing.T) {
	p := testPolicy()
	b := Backoff{Interval: p.InitialInterval, LastAttempt: t0}
	calls := 0
	reinit := failWith(types.StateTransportError, &calls)

	for _, d := range []time.Duration{time.Second, 5 * time.Second, p.InitialInterval - time.Nanosecond} {
		_, nb, attempted := Step(p, types.StateTransportError, b, t0.Add(d), reinit)
		if attempted || nb != b {
			t.Fatalf("attempted %v too early", d)
		}
	}
	if calls != 0 {
		t.Fatalf("reinit called %d times", calls)
	}
	_, nb, attempted := Step(p, types.StateTransportError, b, t0.Add(p.InitialInterval), reinit)
	if !attempted || calls != 1 {
		t.Fatal("no attempt at interval")
	}
	if nb.LastAttempt != t0.Add(p.InitialInterval) || nb.RetryCount != 1 {
		t.Fatalf("bookkeeping %+v", nb)
	}
}

func TestStepSuccessResets(t *testing.T) {
	p := testPolicy()
	b := Backoff{RetryCount: 2, Interval: 20 * time.Second, LastAttempt: t0}
	now := t0.Add(time.Minute)
	s, nb, attempted := Step(p, types.StateError, b, now, func() types.State { return types.StateReady })
	if !attempted || s != types.StateReady {
		t.Fatalf("state %v attempted %v", s, attempted)
	}
	want := Backoff{Interval: p.InitialInterval, LastAttempt: now}
	if nb != want {
		t.Fatalf("got %+v want %+v", nb, want)
	}
}

func TestStepKeepsNewestError(t *testing.T) {
	p := testPolicy()
	b := Backoff{Interval: p.InitialInterval, LastAttempt: t0}
	s, _, _ := Step(p, types.StateError, b, t0.Add(time.Minute), func() types.State { return types.StateVerificationError })
	if s != types.StateVerificationError {
		t.Fatalf("got %v", s)
	}
}

func TestStepDoublesOnceAtThreshold(t *testing.T) {
	p := testPolicy()
	b := Backoff{RetryCount: p.MaxRetries - 1, Interval: p.InitialInterval, LastAttempt: t0}
	now := t0.Add(p.InitialInterval)
	calls := 0
	_, nb, attempted := Step(p, types.StateError, b, now, failWith(types.StateError, &calls))
	if !attempted {
		t.Fatal("no attempt")
	}
	want := Backoff{RetryCount: 0, Interval: 2 * p.InitialInterval, LastAttempt: now}
	if nb != want {
		t.Fatalf("got %+v want %+v", nb, want)
	}
}

func TestStepIntervalNeverShrinksAndCaps(t *testing.T) {
	p := testPolicy()
	b := p.Fresh()
	b.LastAttempt = t0
	now := t0
	calls := 0
	prev := b.Interval
	for i := 0; i < 50; i++ {
		now = now.Add(b.Interval)
		var attempted bool
		_, b, attempted = Step(p, types.StateError, b, now, failWith(types.StateError, &calls))
		if !attempted {
			t.Fatalf("iteration %d: no attempt", i)
		}
		if b.Interval < prev {
			t.Fatalf("interval shrank %v -> %v", prev, b.Interval)
		}
		if b.Interval > p.MaxInterval {
			t.Fatalf("interval %v over cap", b.Interval)
		}
		if b.Interval != prev && b.Interval != 2*prev && b.Interval != p.MaxInterval {
			t.Fatalf("interval jumped %v -> %v", prev, b.Interval)
		}
		prev = b.Interval
	}
	if b.Interval != p.MaxInterval {
		t.Fatalf("never reached cap: %v", b.Interval)
	}
}

func TestStepIdempotentWithinTick(t *testing.T) {
	p := testPolicy()
	b := Backoff{Interval: p.InitialInterval, LastAttempt: t0}
	now := t0.Add(p.InitialInterval)
	calls := 0
	s, nb, _ := Step(p, types.StateError, b, now, failWith(types.StateError, &calls))
	s2, nb2, attempted := Step(p, s, nb, now, failWith(types.StateError, &calls))
	if attempted || calls != 1 || s2 != s || nb2 != nb {
		t.Fatalf("second call in same tick acted: calls=%d", calls)
	}
}

func TestPolicyNormalize(t *testing.T) {
	if got := (Policy{}).Normalize(); got != DefaultPolicy() {
		t.Fatalf("got %+v", got)
	}
	p := Policy{MaxRetries: 1, InitialInterval: time.Minute, MaxInterval: time.Second}.Normalize()
	if p.MaxInterval != time.Minute {
		t.Fatalf("max below initial: %+v", p)
	}
}
