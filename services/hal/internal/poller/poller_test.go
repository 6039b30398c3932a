package poller

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Tick, d time.Duration) map[string]int {
	t.Helper()
	got := map[string]int{}
	deadline := time.After(d)
	for {
		select {
		case tk := <-ch:
			got[tk.Name]++
		case <-deadline:
			return got
		}
	}
}

func TestPollerFiresAtInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Tick, 64)
	p := New(out)
	go p.Run(ctx)

	p.Upsert("fast", 5*time.Millisecond, 0)
	p.Upsert("slow", 40*time.Millisecond, 0)

	got := collect(t, out, 100*time.Millisecond)
	if got["fast"] < 5 {
		t.Fatalf("fast fired %d times", got["fast"])
	}
	if got["slow"] < 1 || got["slow"] > 3 {
		t.Fatalf("slow fired %d times", got["slow"])
	}
}

func TestPollerStopAndUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Tick, 64)
	p := New(out)
	go p.Run(ctx)

	p.Upsert("a", 5*time.Millisecond, 0)
	p.Upsert("a", time.Hour, 0) // update, not duplicate
	if n := len(p.Names()); n != 1 {
		t.Fatalf("names %d", n)
	}
	if got := collect(t, out, 30*time.Millisecond); got["a"] != 0 {
		t.Fatalf("updated schedule still fast: %d", got["a"])
	}

	p.Upsert("b", 5*time.Millisecond, 0)
	p.Stop("b")
	if got := collect(t, out, 30*time.Millisecond); got["b"] != 0 {
		t.Fatalf("stopped job fired %d times", got["b"])
	}
}

func TestPollerIgnoresInvalid(t *testing.T) {
	p := New(make(chan Tick))
	p.Upsert("", time.Second, 0)
	p.Upsert("x", 0, 0)
	if n := len(p.Names()); n != 0 {
		t.Fatalf("names %d", n)
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(make(chan Tick, 1))
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPollerCountsDroppedTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Tick) // nobody reads
	p := New(out)
	go p.Run(ctx)
	p.Upsert("busy", 2*time.Millisecond, 0)

	deadline := time.Now().Add(time.Second)
	for p.Dropped("busy") < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped %d", p.Dropped("busy"))
		}
		time.Sleep(2 * time.Millisecond)
	}
	p.Upsert("busy", time.Hour, 0)
	if p.Dropped("busy") < 3 {
		t.Fatal("reschedule reset the drop count")
	}
	if p.Dropped("unknown") != 0 {
		t.Fatal("unknown job has drops")
	}
}

func TestTickCarriesSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Tick, 1)
	p := New(out)
	go p.Run(ctx)
	p.Upsert("a", 3*time.Millisecond, 0)

	select {
	case tk := <-out:
		if tk.Name != "a" || tk.Every != 3*time.Millisecond || tk.Late < 0 {
			t.Fatalf("tick %+v", tk)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
	if got := p.Names(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("names %v", got)
	}
}
