package companion

import (
	"context"
	"log"
	"sync"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// UIState holds the current state of the UI that views need to render
type UIState struct {
	Mode UIMode
}

// SensorDisplay is what the live sensor screen shows. Fields a reading does
// not carry are zero.
type SensorDisplay struct {
	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32
	DistanceLeft           float32
	DistanceRight          float32
	BPM                    int
	RawLine                string
}

func (d SensorDisplay) withReading(r sensor.Reading) SensorDisplay {
	next := SensorDisplay{RawLine: d.RawLine}
	switch v := r.(type) {
	case sensor.AllInOne:
		next.AccelX, next.AccelY, next.AccelZ = v.AccelX, v.AccelY, v.AccelZ
		next.GyroX, next.GyroY, next.GyroZ = v.GyroX, v.GyroY, v.GyroZ
		next.DistanceLeft, next.DistanceRight = v.DistanceLeft, v.DistanceRight
		next.BPM = v.BPM
	case sensor.Accelerometer:
		next.AccelX, next.AccelY, next.AccelZ = v.X, v.Y, v.Z
	case sensor.Distance:
		next.DistanceLeft, next.DistanceRight = v.Left, v.Right
	}
	return next
}

// CoachSource is the part of a coach.Session the model follows
type CoachSource interface {
	ListenToState(ch chan<- coach.PresentationState) func()
	ListenToReadings(ch chan<- sensor.Reading) func()
	ListenToWindowStatus(ch chan<- coach.WindowStatus) func()
}

type UIModel struct {
	logEvent              *events.ChannelEvent[string]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	uiStateEvent          *events.ChannelEvent[UIState]
	uiState               UIState
	statusEvent           *events.ChannelEvent[sensor.ConnectionStatus]
	status                sensor.ConnectionStatus
	sensorEvent           *events.ChannelEvent[SensorDisplay]
	sensorDisplay         SensorDisplay
	coachStateEvent       *events.ChannelEvent[coach.PresentationState]
	coachState            coach.PresentationState
	windowStatusEvent     *events.ChannelEvent[coach.WindowStatus]
	windowStatus          coach.WindowStatus
	mutedEvent            *events.ChannelEvent[bool]
	muted                 bool
	logLines              []string
	logMu                 sync.RWMutex
	mu                    sync.RWMutex
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	logger                *log.Logger
}

const maxLogLines = 1000

func NewUIModel(source CoachSource, logger *log.Logger, uiLogChan <-chan string) *UIModel {
	if source == nil {
		panic("UIModel: source cannot be nil")
	}
	if logger == nil {
		panic("UIModel: logger cannot be nil")
	}
	if uiLogChan == nil {
		panic("UIModel: uiLogChan cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	model := &UIModel{
		logEvent:              events.NewChannelEvent[string](false),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		uiStateEvent:          events.NewChannelEvent[UIState](true),
		uiState:               UIState{Mode: UIModeLiveSensors},
		statusEvent:           events.NewChannelEvent[sensor.ConnectionStatus](true),
		status:                sensor.StatusDisconnected,
		sensorEvent:           events.NewChannelEvent[SensorDisplay](true),
		coachStateEvent:       events.NewChannelEvent[coach.PresentationState](true),
		coachState:            coach.Collecting(),
		windowStatusEvent:     events.NewChannelEvent[coach.WindowStatus](true),
		mutedEvent:            events.NewChannelEvent[bool](true),
		logLines:              make([]string, 0, maxLogLines),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}

	model.wg.Add(1)
	go_func_utils.SafeGo(model.logger, func() { model.listenToCoach(ctx, source) })

	model.wg.Add(1)
	go_func_utils.SafeGo(model.logger, func() { model.readFromLogChannel(ctx, uiLogChan) })

	return model
}

// Shutdown stops all goroutines and waits for them to finish
func (m *UIModel) Shutdown() {
	m.logger.Println("UIModel: Shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("UIModel: Shutdown complete")
}

// ListenToLog registers a channel to receive log messages
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *UIModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *UIModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

func (m *UIModel) ListenToUIState(ch chan<- UIState) func() {
	return m.uiStateEvent.Listen(ch)
}

func (m *UIModel) GetUIState() UIState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uiState
}

// SetMode updates the current UI mode and notifies listeners
func (m *UIModel) SetMode(mode UIMode) {
	m.mu.Lock()
	if m.uiState.Mode == mode {
		m.mu.Unlock()
		return
	}
	m.uiState.Mode = mode
	state := m.uiState
	m.mu.Unlock()

	m.uiStateEvent.Notify(state)
}

func (m *UIModel) ListenToConnectionStatus(ch chan<- sensor.ConnectionStatus) func() {
	return m.statusEvent.Listen(ch)
}

func (m *UIModel) GetConnectionStatus() sensor.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetConnectionStatus notifies listeners only when the status changes
func (m *UIModel) SetConnectionStatus(status sensor.ConnectionStatus) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()

	m.statusEvent.Notify(status)
}

// ListenToSensorDisplay registers a channel to receive live sensor values
// Returns a deregistration function that can be called to remove the listener
func (m *UIModel) ListenToSensorDisplay(ch chan<- SensorDisplay) func() {
	return m.sensorEvent.Listen(ch)
}

func (m *UIModel) GetSensorDisplay() SensorDisplay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sensorDisplay
}

// SetReading replaces the displayed values with the ones carried by r
func (m *UIModel) SetReading(r sensor.Reading) {
	m.mu.Lock()
	m.sensorDisplay = m.sensorDisplay.withReading(r)
	display := m.sensorDisplay
	m.mu.Unlock()

	m.sensorEvent.Notify(display)
}

// SetRawLine records the last line received from the device, decodable or not
func (m *UIModel) SetRawLine(line string) {
	m.mu.Lock()
	m.sensorDisplay.RawLine = line
	display := m.sensorDisplay
	m.mu.Unlock()

	m.sensorEvent.Notify(display)
}

func (m *UIModel) ListenToCoachState(ch chan<- coach.PresentationState) func() {
	return m.coachStateEvent.Listen(ch)
}

func (m *UIModel) GetCoachState() coach.PresentationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coachState
}

func (m *UIModel) SetCoachState(state coach.PresentationState) {
	m.mu.Lock()
	m.coachState = state
	m.mu.Unlock()

	m.coachStateEvent.Notify(state)
}

func (m *UIModel) ListenToWindowStatus(ch chan<- coach.WindowStatus) func() {
	return m.windowStatusEvent.Listen(ch)
}

func (m *UIModel) GetWindowStatus() coach.WindowStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.windowStatus
}

func (m *UIModel) SetWindowStatus(status coach.WindowStatus) {
	m.mu.Lock()
	m.windowStatus = status
	m.mu.Unlock()

	m.windowStatusEvent.Notify(status)
}

func (m *UIModel) ListenToMuted(ch chan<- bool) func() {
	return m.mutedEvent.Listen(ch)
}

func (m *UIModel) IsMuted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted
}

func (m *UIModel) SetMuted(muted bool) {
	m.mu.Lock()
	if m.muted == muted {
		m.mu.Unlock()
		return
	}
	m.muted = muted
	m.mu.Unlock()

	m.mutedEvent.Notify(muted)
}

// listenToCoach mirrors the session's presentation state, decoded readings and
// window summary into the model
func (m *UIModel) listenToCoach(ctx context.Context, source CoachSource) {
	defer m.wg.Done()

	stateChan := make(chan coach.PresentationState, 8)
	readingChan := make(chan sensor.Reading, 64)
	windowChan := make(chan coach.WindowStatus, 16)
	defer source.ListenToState(stateChan)()
	defer source.ListenToReadings(readingChan)()
	defer source.ListenToWindowStatus(windowChan)()

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-stateChan:
			m.SetCoachState(state)
		case reading := <-readingChan:
			m.SetReading(reading)
		case status := <-windowChan:
			m.SetWindowStatus(status)
		}
	}
}

// readFromLogChannel reads log lines from the channel and populates logLines
func (m *UIModel) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *UIModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}
