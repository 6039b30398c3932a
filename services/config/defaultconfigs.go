package config

import (
	"bytes"
	"io"
)

// -----------------------------------------------------------------------------
// Embedded profiles
//
// Key: profile name (robohal -profile)
// Val: YAML overlaid on Default()
// -----------------------------------------------------------------------------

const cfgRobot = `
pca9685:
  boards: 2
telemetry:
  broker: tcp://localhost:1883
`

// Bench setup: PWM boards only, chatty logs, faster recovery, reports kept
// in a local file.
const cfgBench = `
mpu6050:
  enabled: false
dht22:
  enabled: false
recovery:
  initial_interval_ms: 2000
  max_interval_ms: 30000
telemetry:
  file: robohal-reports.log
log:
  level: debug
`

var embeddedConfigs = map[string][]byte{
	"robot": []byte(cfgRobot),
	"bench": []byte(cfgBench),
}

// EmbeddedConfigLookup allows overriding how profiles are resolved.
var EmbeddedConfigLookup = func(name string) ([]byte, bool) {
	b, ok := embeddedConfigs[name]
	return b, ok
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
