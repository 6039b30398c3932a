// Package convert holds the stateless unit conversions: raw register bytes
// to physical quantities, and logical commands to raw register values.
//
// Physical quantities use periph's physic types where one exists
// (Temperature, RelativeHumidity, Frequency, Angle); the float helpers below
// project them into the units the readings carry.
package convert

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"robohal-go/errcode"
	"robohal-go/x/mathx"
)

// MaxAngle is the servo travel in degrees.
const MaxAngle = 180.0

// Duty is a PWM OFF count before truncation to the register width. It is
// strictly increasing in the commanded angle.
type Duty float64

// Counts truncates d to the integer register value.
func (d Duty) Counts() uint16 {
	if d <= 0 {
		return 0
	}
	return uint16(d)
}

// AngleToDuty maps an angle in [0, MaxAngle] degrees onto [0, maxDuty].
// angle == MaxAngle yields exactly maxDuty.
func AngleToDuty(angle float64, maxDuty uint16) (Duty, error) {
	const op = "angle_to_duty"
	if maxDuty == 0 {
		return 0, errcode.New(errcode.Configuration, op, "max duty is zero")
	}
	if !mathx.Finite(angle) || !mathx.Between(angle, 0, MaxAngle) {
		return 0, errcode.New(errcode.Configuration, op, fmt.Sprintf("angle %v outside [0,%v]", angle, MaxAngle))
	}
	if angle == MaxAngle {
		return Duty(maxDuty), nil
	}
	return Duty(angle / MaxAngle * float64(maxDuty)), nil
}

// Degrees converts a periph angle to degrees.
func Degrees(a physic.Angle) float64 { return float64(a) / float64(physic.Degree) }

// ---- PWM clock ----

// Prescale returns the prescaler that divides osc down to pwm:
// osc/(resolution*pwm) - 1, truncated. The hardware accepts 3..255.
func Prescale(osc, pwm physic.Frequency, resolution uint32) (byte, error) {
	const op = "prescale"
	if pwm <= 0 || osc <= 0 || resolution == 0 {
		return 0, errcode.New(errcode.Configuration, op, "frequencies and resolution must be positive")
	}
	div := int64(osc) / (int64(resolution) * int64(pwm))
	p := div - 1
	if p < 3 || p > 255 {
		return 0, errcode.New(errcode.Configuration, op, fmt.Sprintf("%s not reachable from %s", pwm, osc))
	}
	return byte(p), nil
}

// PrescaleFrequency is the PWM frequency produced by a prescaler value.
func PrescaleFrequency(osc physic.Frequency, prescale byte, resolution uint32) physic.Frequency {
	return osc / physic.Frequency(int64(resolution)*(int64(prescale)+1))
}

// Hertz projects f to a float in Hz.
func Hertz(f physic.Frequency) float64 { return float64(f) / float64(physic.Hertz) }

// ---- Inertial samples ----

// Int16BE assembles a big-endian two's complement sample.
func Int16BE(hi, lo byte) int16 { return int16(uint16(hi)<<8 | uint16(lo)) }

// Axes decodes three consecutive big-endian int16 samples (x, y, z).
func Axes(b []byte) ([3]int16, error) {
	var out [3]int16
	if len(b) != 6 {
		return out, errcode.New(errcode.Configuration, "axes", fmt.Sprintf("need 6 bytes, got %d", len(b)))
	}
	for i := range out {
		out[i] = Int16BE(b[2*i], b[2*i+1])
	}
	return out, nil
}

// Scale divides each raw axis by the sensitivity (LSB per unit).
func Scale(raw [3]int16, lsbPerUnit float64) [3]float64 {
	var out [3]float64
	for i, v := range raw {
		out[i] = float64(v) / lsbPerUnit
	}
	return out
}

// ---- Climate ----

// DeciValue returns the 16-bit big-endian word as tenths, with bit 15 as a
// sign flag (the single-wire sensor's temperature encoding). Humidity never
// sets the flag.
func DeciValue(hi, lo byte) float64 {
	neg := hi&0x80 != 0
	v := float64(uint16(hi&0x7F)<<8|uint16(lo)) / 10
	if neg {
		return -v
	}
	return v
}

// Temperature builds a periph temperature from degrees Celsius.
func Temperature(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
}

// Celsius projects t to degrees Celsius.
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

// Fahrenheit projects t to degrees Fahrenheit.
func Fahrenheit(t physic.Temperature) float64 { return Celsius(t)*9/5 + 32 }

// Humidity builds a periph relative humidity from percent. Values outside
// 0..100 can only come from a corrupt frame and fail with verification_error.
func Humidity(pct float64) (physic.RelativeHumidity, error) {
	if !mathx.Finite(pct) || !mathx.Between(pct, 0, 100) {
		return 0, errcode.New(errcode.Verification, "humidity", fmt.Sprintf("%v %%RH outside [0,100]", pct))
	}
	return physic.RelativeHumidity(pct * float64(physic.PercentRH)), nil
}

// Percent projects h to percent.
func Percent(h physic.RelativeHumidity) float64 { return float64(h) / float64(physic.PercentRH) }
