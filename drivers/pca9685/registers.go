package pca9685

// Register map (subset used by the driver).
const (
	regMode1    = 0x00
	regMode2    = 0x01
	regLED0OnL  = 0x06
	regPreScale = 0xFE
)

// MODE1 bits.
const (
	Mode1Restart = 0x80
	Mode1AI      = 0x20 // register auto-increment
	Mode1Sleep   = 0x10
	Mode1AllCall = 0x01
)

// MODE2 bits.
const mode2OutDrv = 0x04 // totem pole outputs

// Channel registers are four bytes each: ON_L, ON_H, OFF_L, OFF_H.
const channelStride = 4

// ChannelRegister returns the first (ON_L) register of channel ch.
func ChannelRegister(ch int) byte { return byte(regLED0OnL + channelStride*ch) }
