package mathx

import (
	"math"
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Fatalf("got %d", got)
	}
	if got := Clamp(-1.5, 0.0, 3.0); got != 0 {
		t.Fatalf("got %v", got)
	}
	if got := Clamp(2, 3, 0); got != 2 {
		t.Fatalf("swapped bounds: got %d", got)
	}
}

func TestBetween(t *testing.T) {
	if !Between(180.0, 0, 180) || Between(180.01, 0, 180) {
		t.Fatal("Between edge")
	}
}

func TestClampDuration(t *testing.T) {
	if got := Clamp(16*time.Minute, 15*time.Second, 8*time.Minute); got != 8*time.Minute {
		t.Fatalf("got %v", got)
	}
}

func TestFinite(t *testing.T) {
	if Finite(math.NaN()) || Finite(math.Inf(1)) || !Finite(90) {
		t.Fatal("Finite")
	}
}
