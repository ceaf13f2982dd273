package companion

import (
	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// UIViewImpl defines the interface for framework-specific UI implementations
type UIViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	Initialize(controller *UIController)

	// SetupKeyboardHandlers sets up keyboard event handlers
	SetupKeyboardHandlers(controller *UIController)

	// Run starts the UI framework and blocks until it exits
	Run() error

	Stop()

	// Draw refreshes/redraws the UI
	Draw() error

	// --- Mode Management ---

	SetMode(mode UIMode)

	GetCurrentMode() UIMode

	// --- Log View (shared across modes) ---

	GetLogViewHeight() int

	ClearLogView()

	WriteLogLine(line string) error

	// --- Shared status bar ---

	UpdateConnectionStatus(status sensor.ConnectionStatus)

	UpdateMuted(muted bool)

	// --- Live Sensors Mode ---

	UpdateSensorDisplay(display SensorDisplay)

	// --- Coach Mode ---

	UpdateCoachState(state coach.PresentationState)

	UpdateWindowStatus(status coach.WindowStatus)
}
