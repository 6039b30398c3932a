package types

import "time"

// IMUReading is one converted accelerometer + gyroscope sample.
type IMUReading struct {
	Accel   [3]float64 `json:"accel_g"`  // x, y, z in g
	Gyro    [3]float64 `json:"gyro_dps"` // x, y, z in degrees/second
	TakenAt time.Time  `json:"taken_at"`
}

// ClimateReading is one converted temperature/humidity sample.
type ClimateReading struct {
	TemperatureC float64   `json:"temperature_c"`
	TemperatureF float64   `json:"temperature_f"`
	Humidity     float64   `json:"humidity_pct"`
	TakenAt      time.Time `json:"taken_at"`
}

// PWMStatus is the read-back health of a PWM driver board.
type PWMStatus struct {
	Mode1       byte      `json:"mode1"`
	Prescale    byte      `json:"prescale"`
	FrequencyHz float64   `json:"frequency_hz"`
	TakenAt     time.Time `json:"taken_at"`
}
