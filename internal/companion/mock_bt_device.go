package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/cyciot/cyciot-app/internal/bt"
	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
)

// MockSensorValues are the values the simulated unit reports
type MockSensorValues struct {
	AccelX        float32 `json:"ax"`
	AccelY        float32 `json:"ay"`
	AccelZ        float32 `json:"az"`
	GyroX         float32 `json:"gx"`
	GyroY         float32 `json:"gy"`
	GyroZ         float32 `json:"gz"`
	DistanceLeft  float32 `json:"dl"`
	DistanceRight float32 `json:"dr"`
	BPM           int     `json:"bpm"`
}

// Line renders the values the way the sensor firmware prints a composite sample
func (v MockSensorValues) Line() string {
	return fmt.Sprintf("AX:%.2f AY:%.2f AZ:%.2f GX:%.2f GY:%.2f GZ:%.2f DL:%.1f DR:%.1f BPM:%d",
		v.AccelX, v.AccelY, v.AccelZ, v.GyroX, v.GyroY, v.GyroZ, v.DistanceLeft, v.DistanceRight, v.BPM)
}

// MockDeviceState represents the current state for the web API
type MockDeviceState struct {
	Values    MockSensorValues `json:"values"`
	Connected bool             `json:"connected"`
	Notifying bool             `json:"notifying"`
	Address   string           `json:"address"`
	LocalName string           `json:"localName"`
	LastLine  string           `json:"lastLine"`
}

// MockSensorDevice implements bt.BTDevice for running without the real unit
type MockSensorDevice struct {
	logger       *log.Logger
	address      string
	localName    string
	serviceUUIDs []string

	mu       sync.RWMutex
	state    bt.BTDeviceState
	lastSeen time.Time
	callback func([]byte)
	values   MockSensorValues
	lastLine string

	server     *http.Server
	serverPort int
	wg         sync.WaitGroup
}

// MockSensorDeviceConfig holds configuration for creating a mock device
type MockSensorDeviceConfig struct {
	Address    string
	LocalName  string
	ServerPort int // 0 disables the control page
}

func NewMockSensorDevice(logger *log.Logger, config MockSensorDeviceConfig) *MockSensorDevice {
	if logger == nil {
		panic("MockSensorDevice: logger cannot be nil")
	}
	return &MockSensorDevice{
		logger:       logger,
		address:      config.Address,
		localName:    config.LocalName,
		serviceUUIDs: []string{ServiceUUIDSensor},
		state:        bt.Disconnected,
		values: MockSensorValues{
			AccelX: 0.12, AccelY: -0.05, AccelZ: 9.81,
			GyroX: 0.01, GyroY: 0.02, GyroZ: -0.01,
			DistanceLeft: 120, DistanceRight: 95,
			BPM: 92,
		},
		serverPort: config.ServerPort,
	}
}

// Start starts the control page when a port is configured
func (m *MockSensorDevice) Start() error {
	if m.serverPort <= 0 {
		return nil
	}
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.serverPort),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		m.logger.Printf("MockSensorDevice: Web server starting on http://localhost:%d", m.serverPort)
		if err := m.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("MockSensorDevice: Web server error: %v", err)
		}
	})
	return nil
}

// Handler serves the control page and its JSON API
func (m *MockSensorDevice) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/api/state", m.handleGetState)
	mux.HandleFunc("/api/set", m.handleSetValues)
	mux.HandleFunc("/api/inject", m.handleInject)
	return mux
}

func (m *MockSensorDevice) Shutdown() {
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Printf("MockSensorDevice: Error shutting down web server: %v", err)
		}
	}
	m.wg.Wait()
}

func (m *MockSensorDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = bt.Connected
	} else {
		m.state = bt.Disconnected
		m.callback = nil
	}
	m.logger.Printf("MockSensorDevice: State changed to %s", m.state)
}

func (m *MockSensorDevice) markSeen(t time.Time) {
	m.mu.Lock()
	m.lastSeen = t
	m.mu.Unlock()
}

func (m *MockSensorDevice) Values() MockSensorValues {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values
}

func (m *MockSensorDevice) SetValues(values MockSensorValues) {
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
}

// EmitReading sends the current values as one composite line
func (m *MockSensorDevice) EmitReading() error {
	return m.Inject(m.Values().Line())
}

// Inject delivers line to the subscriber as if the unit had sent it
func (m *MockSensorDevice) Inject(line string) error {
	m.mu.Lock()
	cb := m.callback
	if m.state != bt.Connected || cb == nil {
		m.mu.Unlock()
		return bt.ErrNotConnected
	}
	m.lastLine = line
	m.mu.Unlock()

	cb([]byte(line))
	return nil
}

// --- bt.BTDevice ---

func (m *MockSensorDevice) GetAddressString() string { return m.address }

func (m *MockSensorDevice) GetLocalName() string { return m.localName }

func (m *MockSensorDevice) GetScanRSSI() (int16, error) { return -42, nil }

func (m *MockSensorDevice) GetScanLastSeen() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

func (m *MockSensorDevice) IsRecentlyScanned() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.lastSeen.IsZero() && time.Since(m.lastSeen) <= DefaultScanTimeout
}

func (m *MockSensorDevice) IsConnected() bool {
	return m.GetState() == bt.Connected
}

func (m *MockSensorDevice) GetState() bt.BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockSensorDevice) HasServiceUUID(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (m *MockSensorDevice) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !m.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection to %s: %w", m.address, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (m *MockSensorDevice) EnableNotifications(serviceUuid string, characteristicUuid string, onData func(buf []byte)) error {
	if onData == nil {
		return errors.New("notification callback cannot be nil")
	}
	if err := m.checkCharacteristic(serviceUuid, characteristicUuid); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != bt.Connected {
		return bt.ErrNotConnected
	}
	m.callback = onData
	m.logger.Printf("MockSensorDevice: notifications enabled for %s", characteristicUuid)
	return nil
}

func (m *MockSensorDevice) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	if err := m.checkCharacteristic(serviceUuid, characteristicUuid); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != bt.Connected {
		return bt.ErrNotConnected
	}
	m.callback = nil
	return nil
}

func (m *MockSensorDevice) checkCharacteristic(serviceUuid, characteristicUuid string) error {
	if !m.HasServiceUUID(serviceUuid) {
		return fmt.Errorf("service %s not found on device", serviceUuid)
	}
	if characteristicUuid != CharUUIDSensorReadings {
		return fmt.Errorf("characteristic %s not found in service %s", characteristicUuid, serviceUuid)
	}
	return nil
}

// --- Web Server Handlers ---

func (m *MockSensorDevice) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = io.WriteString(w, mockIndexHTML)
}

func (m *MockSensorDevice) handleGetState(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	state := MockDeviceState{
		Values:    m.values,
		Connected: m.state == bt.Connected,
		Notifying: m.callback != nil,
		Address:   m.address,
		LocalName: m.localName,
		LastLine:  m.lastLine,
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		m.logger.Printf("MockSensorDevice: encode state: %v", err)
	}
}

func (m *MockSensorDevice) handleSetValues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	values := m.Values()
	floats := map[string]*float32{
		"ax": &values.AccelX, "ay": &values.AccelY, "az": &values.AccelZ,
		"gx": &values.GyroX, "gy": &values.GyroY, "gz": &values.GyroZ,
		"dl": &values.DistanceLeft, "dr": &values.DistanceRight,
	}
	for key, dst := range floats {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s: %v", key, err), http.StatusBadRequest)
			return
		}
		*dst = float32(f)
	}
	if raw := q.Get("bpm"); raw != "" {
		bpm, err := strconv.Atoi(raw)
		if err != nil || bpm < 0 {
			http.Error(w, "invalid bpm", http.StatusBadRequest)
			return
		}
		values.BPM = bpm
	}
	m.SetValues(values)
	w.WriteHeader(http.StatusOK)
}

// handleInject sends the request body, or the line query parameter, as a raw line
func (m *MockSensorDevice) handleInject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	line := r.URL.Query().Get("line")
	if line == "" {
		body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		line = strings.TrimSpace(string(body))
	}
	if line == "" {
		http.Error(w, "empty line", http.StatusBadRequest)
		return
	}
	if err := m.Inject(line); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

const mockIndexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Mock SensorBLE Control</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        .section { margin: 20px 0; padding: 15px; border: 1px solid #ccc; border-radius: 5px; }
        label { display: inline-block; width: 120px; }
        input[type="number"] { width: 100px; padding: 5px; }
        input[type="text"] { width: 500px; padding: 5px; }
        button { padding: 10px 20px; margin: 5px; cursor: pointer; }
        .status { padding: 10px; background: #e0e0e0; border-radius: 5px; margin: 10px 0; font-family: monospace; }
    </style>
</head>
<body>
    <h1>Mock SensorBLE Control</h1>
    <div class="status" id="status">Loading...</div>
    <div class="section">
        <h2>Values</h2>
        <div><label>Accel X</label><input type="number" step="0.01" id="ax"></div>
        <div><label>Accel Y</label><input type="number" step="0.01" id="ay"></div>
        <div><label>Accel Z</label><input type="number" step="0.01" id="az"></div>
        <div><label>Gyro X</label><input type="number" step="0.01" id="gx"></div>
        <div><label>Gyro Y</label><input type="number" step="0.01" id="gy"></div>
        <div><label>Gyro Z</label><input type="number" step="0.01" id="gz"></div>
        <div><label>Distance L (cm)</label><input type="number" step="1" id="dl"></div>
        <div><label>Distance R (cm)</label><input type="number" step="1" id="dr"></div>
        <div><label>BPM</label><input type="number" step="1" id="bpm"></div>
        <button onclick="setValues()">Set</button>
    </div>
    <div class="section">
        <h2>Raw line</h2>
        <input type="text" id="line" placeholder="DL:42.0 DR:17.5">
        <button onclick="inject()">Send</button>
    </div>
    <script>
        const keys = ['ax', 'ay', 'az', 'gx', 'gy', 'gz', 'dl', 'dr', 'bpm'];
        function refreshState() {
            fetch('/api/state').then(r => r.json()).then(s => {
                document.getElementById('status').textContent =
                    s.localName + ' (' + s.address + ') ' + (s.connected ? 'connected' : 'disconnected') +
                    (s.lastLine ? ' | last: ' + s.lastLine : '');
                for (const k of keys) {
                    const el = document.getElementById(k);
                    if (document.activeElement !== el) { el.value = s.values[k]; }
                }
            });
        }
        function setValues() {
            const params = new URLSearchParams();
            for (const k of keys) { params.set(k, document.getElementById(k).value); }
            fetch('/api/set?' + params.toString(), { method: 'POST' }).then(refreshState);
        }
        function inject() {
            fetch('/api/inject', { method: 'POST', body: document.getElementById('line').value }).then(refreshState);
        }
        refreshState();
        setInterval(refreshState, 1000);
    </script>
</body>
</html>`

// --- MockBTManager ---

// MockConfig configures the simulated sensor unit
type MockConfig struct {
	Name     string        // advertised name, DeviceName when empty
	Port     int           // control page port, 0 disables it
	Interval time.Duration // time between composite readings
}

// MockBTManager implements bt.BTManagerInterface around one simulated unit
type MockBTManager struct {
	logger                *log.Logger
	device                *MockSensorDevice
	interval              time.Duration
	scanning              bool
	scanFilter            bt.ScanFilter
	notificationsRunning  bool
	scanDeviceListEvent   *events.ChannelEvent[[]bt.BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]bt.BTDevice]
	ctx                   context.Context
	cancel                context.CancelFunc
	scanCancel            context.CancelFunc
	notifyCancel          context.CancelFunc
	wg                    sync.WaitGroup
	mu                    sync.RWMutex
}

var _ bt.BTManagerInterface = (*MockBTManager)(nil)

func NewMockBTManager(logger *log.Logger, config MockConfig) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}
	if config.Name == "" {
		config.Name = DeviceName
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MockBTManager{
		logger: logger,
		device: NewMockSensorDevice(logger, MockSensorDeviceConfig{
			Address:    "00:11:22:33:44:55",
			LocalName:  config.Name,
			ServerPort: config.Port,
		}),
		interval:              config.Interval,
		scanDeviceListEvent:   events.NewChannelEvent[[]bt.BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// Enable starts the control page. The device stays invisible until a scan.
func (m *MockBTManager) Enable() error {
	if err := m.device.Start(); err != nil {
		return err
	}
	if m.device.serverPort > 0 {
		m.logger.Printf("MockBTManager: %s web UI at http://localhost:%d", m.device.localName, m.device.serverPort)
	}
	m.connectedDevicesEvent.Notify([]bt.BTDevice{})
	return nil
}

// Device returns the simulated unit
func (m *MockBTManager) Device() *MockSensorDevice {
	return m.device
}

func (m *MockBTManager) visible(filter bt.ScanFilter) bool {
	if filter.LocalName != "" && filter.LocalName != m.device.localName {
		return false
	}
	if len(filter.ServiceUUIDs) == 0 {
		return true
	}
	for _, uuid := range filter.ServiceUUIDs {
		if m.device.HasServiceUUID(uuid) {
			return true
		}
	}
	return false
}

// StartScan "discovers" the unit right away and keeps it fresh while scanning
func (m *MockBTManager) StartScan(filter bt.ScanFilter) {
	m.logger.Println("MockBTManager: Starting scan")
	m.mu.Lock()
	if m.scanCancel != nil {
		m.scanCancel()
	}
	scanCtx, scanCancel := context.WithCancel(m.ctx)
	m.scanning = true
	m.scanFilter = filter
	m.scanCancel = scanCancel
	m.mu.Unlock()

	if m.visible(filter) {
		m.device.markSeen(time.Now())
		m.logger.Printf("MockBTManager: Found device: %s (%s)", m.device.localName, m.device.address)
	}
	m.scanDeviceListEvent.Notify(m.GetScanDevices())

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				if m.visible(filter) {
					m.device.markSeen(time.Now())
				}
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

func (m *MockBTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.logger.Println("MockBTManager: Stopping scan")
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return nil
}

func (m *MockBTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

func (m *MockBTManager) FindDeviceByName(name string) (bt.BTDevice, bool) {
	if m.device.localName == name && m.device.IsRecentlyScanned() {
		return m.device, true
	}
	return nil, false
}

func (m *MockBTManager) GetBTDeviceByAddressString(addressString string) bt.BTDevice {
	if m.device.address == addressString {
		return m.device
	}
	return nil
}

func (m *MockBTManager) Connect(device bt.BTDevice) error {
	if device == nil || device.GetAddressString() != m.device.address {
		return fmt.Errorf("unknown device: %v", device)
	}
	m.logger.Printf("MockBTManager: Connecting to %s", device.GetAddressString())
	m.device.SetConnected(true)
	m.startNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

func (m *MockBTManager) Disconnect(device bt.BTDevice) error {
	if device == nil || device.GetAddressString() != m.device.address {
		return fmt.Errorf("unknown device: %v", device)
	}
	m.logger.Printf("MockBTManager: Disconnecting from %s", device.GetAddressString())
	m.device.SetConnected(false)
	m.stopNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

// startNotifications emits one composite reading per interval while connected
func (m *MockBTManager) startNotifications() {
	m.mu.Lock()
	if m.notificationsRunning {
		m.mu.Unlock()
		return
	}
	m.notificationsRunning = true
	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel
	m.mu.Unlock()

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.notificationsRunning = false
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-notifyCtx.Done():
				return
			case <-ticker.C:
				// not subscribed yet
				_ = m.device.EmitReading()
			}
		}
	})
}

func (m *MockBTManager) stopNotifications() {
	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.mu.Unlock()
}

func (m *MockBTManager) GetConnectedDevices() []bt.BTDevice {
	if m.device.IsConnected() {
		return []bt.BTDevice{m.device}
	}
	return []bt.BTDevice{}
}

func (m *MockBTManager) GetScanDevices() []bt.BTDevice {
	if m.device.IsRecentlyScanned() {
		return []bt.BTDevice{m.device}
	}
	return []bt.BTDevice{}
}

func (m *MockBTManager) ListenToDeviceList(ch chan<- []bt.BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *MockBTManager) ListenToConnectedDevices(ch chan<- []bt.BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

// SimulateLinkLoss drops the link from the device side
func (m *MockBTManager) SimulateLinkLoss() {
	m.logger.Println("MockBTManager: Simulating link loss")
	m.device.SetConnected(false)
	m.stopNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}

func (m *MockBTManager) Shutdown() {
	m.logger.Println("MockBTManager: Shutting down")
	_ = m.StopScan()
	m.stopNotifications()
	m.cancel()
	m.wg.Wait()
	m.device.Shutdown()
	m.logger.Println("MockBTManager: Shutdown complete")
}
