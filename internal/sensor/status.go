package sensor

// ConnectionStatus is the transport state shown to the rider
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusScanning
	StatusConnecting
	StatusConnected
	StatusBluetoothDisabled
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusScanning:
		return "Scanning..."
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusBluetoothDisabled:
		return "Bluetooth disabled"
	default:
		return "Unknown"
	}
}
