package convert

import (
	"errors"
	"math"
	"testing"

	"periph.io/x/conn/v3/physic"

	"robohal-go/errcode"
)

func TestAngleToDutyEndpoints(t *testing.T) {
	cases := []struct {
		angle float64
		want  uint16
	}{
		{0, 0},
		{90, 2047},
		{180, 4095},
	}
	for _, c := range cases {
		d, err := AngleToDuty(c.angle, 4095)
		if err != nil {
			t.Fatalf("angle %v: %v", c.angle, err)
		}
		if got := d.Counts(); got != c.want {
			t.Fatalf("angle %v: got %d want %d", c.angle, got, c.want)
		}
	}
}

func TestAngleToDutyStrictlyMonotonic(t *testing.T) {
	prev := Duty(-1)
	for a := 0.0; a <= MaxAngle; a += 0.25 {
		d, err := AngleToDuty(a, 4095)
		if err != nil {
			t.Fatal(err)
		}
		if d <= prev {
			t.Fatalf("not increasing at %v: %v <= %v", a, d, prev)
		}
		if d.Counts() < prev.Counts() {
			t.Fatalf("counts decreased at %v", a)
		}
		prev = d
	}
}

func TestAngleToDutyRejects(t *testing.T) {
	for _, a := range []float64{-0.01, 180.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := AngleToDuty(a, 4095); !errors.Is(err, errcode.Configuration) {
			t.Fatalf("angle %v: want configuration error, got %v", a, err)
		}
	}
	if _, err := AngleToDuty(10, 0); !errors.Is(err, errcode.Configuration) {
		t.Fatalf("zero max duty: %v", err)
	}
}

func TestDegrees(t *testing.T) {
	if got := Degrees(90 * physic.Degree); math.Abs(got-90) > 1e-9 {
		t.Fatalf("got %v", got)
	}
}

func TestPrescale(t *testing.T) {
	osc := 25 * physic.MegaHertz
	p, err := Prescale(osc, 50*physic.Hertz, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if p != 121 {
		t.Fatalf("prescale got %d want 121", p)
	}
	f := Hertz(PrescaleFrequency(osc, p, 4096))
	if math.Abs(f-50) > 0.1 {
		t.Fatalf("round trip frequency %v", f)
	}

	if _, err := Prescale(osc, 5000*physic.Hertz, 4096); !errors.Is(err, errcode.Configuration) {
		t.Fatalf("too fast: %v", err)
	}
	if _, err := Prescale(osc, 10*physic.Hertz, 4096); !errors.Is(err, errcode.Configuration) {
		t.Fatalf("too slow: %v", err)
	}
	if _, err := Prescale(osc, 0, 4096); !errors.Is(err, errcode.Configuration) {
		t.Fatalf("zero: %v", err)
	}
}

func TestAxes(t *testing.T) {
	raw, err := Axes([]byte{0x40, 0x00, 0xC0, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if raw != [3]int16{16384, -16384, 1} {
		t.Fatalf("got %v", raw)
	}
	g := Scale(raw, 16384)
	if g[0] != 1 || g[1] != -1 {
		t.Fatalf("scaled %v", g)
	}
	if _, err := Axes([]byte{1, 2, 3}); err == nil {
		t.Fatal("short block accepted")
	}
}

func TestInt16BE(t *testing.T) {
	if v := Int16BE(0xFF, 0xFF); v != -1 {
		t.Fatalf("got %d", v)
	}
	if v := Int16BE(0x7F, 0xFF); v != math.MaxInt16 {
		t.Fatalf("got %d", v)
	}
}

func TestDeciValue(t *testing.T) {
	if v := DeciValue(0x02, 0x8C); v != 65.2 {
		t.Fatalf("humidity got %v", v)
	}
	if v := DeciValue(0x80, 0x65); v != -10.1 {
		t.Fatalf("negative temperature got %v", v)
	}
}

func TestTemperatureProjection(t *testing.T) {
	tc := Temperature(35.1)
	if c := Celsius(tc); math.Abs(c-35.1) > 1e-6 {
		t.Fatalf("celsius %v", c)
	}
	if f := Fahrenheit(tc); math.Abs(f-95.18) > 1e-6 {
		t.Fatalf("fahrenheit %v", f)
	}
	if f := Fahrenheit(Temperature(-40)); math.Abs(f+40) > 1e-6 {
		t.Fatalf("-40 %v", f)
	}
}

func TestHumidity(t *testing.T) {
	h, err := Humidity(65.2)
	if err != nil {
		t.Fatal(err)
	}
	if p := Percent(h); math.Abs(p-65.2) > 1e-6 {
		t.Fatalf("got %v", p)
	}
	for _, pct := range []float64{0, 100} {
		if _, err := Humidity(pct); err != nil {
			t.Fatalf("%v: %v", pct, err)
		}
	}
}

func TestHumidityRejectsOutOfRange(t *testing.T) {
	for _, pct := range []float64{100.1, 102, -0.1, math.NaN()} {
		if _, err := Humidity(pct); !errors.Is(err, errcode.Verification) {
			t.Fatalf("%v: want verification error, got %v", pct, err)
		}
	}
}
