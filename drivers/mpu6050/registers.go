package mpu6050

const (
	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXOutH  = 0x3B
	regGyroXOutH   = 0x43
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
)

// PWR_MGMT_1 values.
const (
	pwrAwake = 0x00
	pwrReset = 0x80
)

// DLPF_CFG settings (accelerometer bandwidth).
const (
	DLPF260Hz = 0
	DLPF184Hz = 1
	DLPF94Hz  = 2
	DLPF44Hz  = 3
	DLPF21Hz  = 4
	DLPF10Hz  = 5
	DLPF5Hz   = 6
)

// Range selects a full-scale setting, 0 (most sensitive) through 3.
type Range uint8

const (
	Range0 Range = iota // ±2 g, ±250 °/s
	Range1              // ±4 g, ±500 °/s
	Range2              // ±8 g, ±1000 °/s
	Range3              // ±16 g, ±2000 °/s
)

var (
	accelLSB = [...]float64{16384, 8192, 4096, 2048}
	gyroLSB  = [...]float64{131, 65.5, 32.8, 16.4}
)

// Valid reports whether r is one of the four hardware settings.
func (r Range) Valid() bool { return r <= Range3 }

// AccelSensitivity is LSB per g.
func (r Range) AccelSensitivity() float64 { return accelLSB[r] }

// GyroSensitivity is LSB per °/s.
func (r Range) GyroSensitivity() float64 { return gyroLSB[r] }

// bits is the FS_SEL / AFS_SEL field of the config registers.
func (r Range) bits() byte { return byte(r) << 3 }
