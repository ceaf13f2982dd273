package companion

import (
	"errors"
	"time"
)

// GATT identifiers of the bicycle sensor unit. The unit advertises under a
// fixed local name and streams text lines on a single notify characteristic.
const (
	DeviceName             = "SensorBLE"
	ServiceUUIDSensor      = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	CharUUIDSensorReadings = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultScanTimeout    = 10 * time.Second
)

// Texts shown on the coach screen
const (
	TextCollecting  = "Collecting sensor data..."
	TextAnalyzing   = "Analyzing data..."
	TextErrorPrefix = "Error: "
)

// ErrDeviceNotFound is returned when no peripheral with the configured name
// shows up before the scan times out
var ErrDeviceNotFound = errors.New("sensor device not found")

// UIMode represents the current UI mode/screen
type UIMode int

const (
	UIModeLiveSensors UIMode = iota // Live sensor values and connection state
	UIModeCoach                     // Coaching feedback from the analysis
)

// UIModeInfo contains display information for a UI mode
type UIModeInfo struct {
	Mode        UIMode
	DisplayName string
	KeyBinding  rune // The number key to activate this mode (1-9)
}

// AllUIModes defines all available UI modes in order
var AllUIModes = []UIModeInfo{
	{Mode: UIModeLiveSensors, DisplayName: "Live Sensors", KeyBinding: '1'},
	{Mode: UIModeCoach, DisplayName: "Coach", KeyBinding: '2'},
}

// GetUIModeByKey returns the mode for a given key binding
func GetUIModeByKey(key rune) (UIMode, bool) {
	for _, info := range AllUIModes {
		if info.KeyBinding == key {
			return info.Mode, true
		}
	}
	return 0, false
}

// GetUIModeInfo returns the info for a given mode
func GetUIModeInfo(mode UIMode) (UIModeInfo, bool) {
	for _, info := range AllUIModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return UIModeInfo{}, false
}
