package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/safe_map"

	"tinygo.org/x/bluetooth"
)

// ScanFilter narrows which advertisements are kept. Empty fields match
// everything.
type ScanFilter struct {
	LocalName    string
	ServiceUUIDs []string
}

func (f ScanFilter) matches(result bluetooth.ScanResult) bool {
	if f.LocalName != "" && result.LocalName() != f.LocalName {
		return false
	}
	if len(f.ServiceUUIDs) == 0 {
		return true
	}
	for _, advertised := range result.ServiceUUIDs() {
		for _, want := range f.ServiceUUIDs {
			if advertised.String() == want {
				return true
			}
		}
	}
	return false
}

// BTManagerInterface is implemented by the real adapter-backed manager and by
// the simulated sensor
type BTManagerInterface interface {
	Enable() error
	StartScan(filter ScanFilter)
	StopScan() error
	IsScanning() bool
	FindDeviceByName(name string) (BTDevice, bool)
	GetBTDeviceByAddressString(addressString string) BTDevice
	Connect(device BTDevice) error
	Disconnect(device BTDevice) error
	GetConnectedDevices() []BTDevice
	GetScanDevices() []BTDevice
	ListenToDeviceList(ch chan<- []BTDevice) func()
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter     *bluetooth.Adapter
	logger      *log.Logger
	scanTimeout time.Duration
	devices     *safe_map.SafeMap[string, *peripheral]

	mu         sync.Mutex
	scanning   bool
	scanCancel context.CancelFunc

	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBTManager wraps adapter. Devices not seen for scanTimeout drop out of the
// scan list; zero means 10s.
func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		logger:                logger,
		scanTimeout:           scanTimeout,
		devices:               safe_map.NewSafeMap[string, *peripheral](),
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *BTManager) peripheralFor(address bluetooth.Address) (*peripheral, bool) {
	return m.devices.LoadOrCreate(address.String(), func() *peripheral {
		return newPeripheral(m.logger, address, m.scanTimeout)
	})
}

func (m *BTManager) lookup(device BTDevice) (*peripheral, error) {
	if device == nil {
		return nil, fmt.Errorf("nil device")
	}
	p, ok := m.devices.Load(device.GetAddressString())
	if !ok {
		return nil, fmt.Errorf("unknown device %s", device.GetAddressString())
	}
	return p, nil
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p, _ := m.peripheralFor(device.Address)
		if connected {
			m.logger.Printf("BTManager: device connected: %s", device.Address.String())
			p.setLink(&device)
		} else {
			m.logger.Printf("BTManager: device disconnected: %s", device.Address.String())
			p.setLink(nil)
		}
		m.emitConnectedDevicesChange()
	})
	return m.adapter.Enable()
}

// StartScan scans until StopScan or Shutdown, replacing any scan in progress
func (m *BTManager) StartScan(filter ScanFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scanning && m.scanCancel != nil {
		m.logger.Printf("BTManager: restarting scan")
		m.scanCancel()
		// the adapter only runs one scan at a time
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Printf("BTManager: error stopping previous scan: %v", err)
		}
	}
	m.logger.Printf("BTManager: starting scan (name=%q services=%v)", filter.LocalName, filter.ServiceUUIDs)

	scanCtx, cancel := context.WithCancel(m.ctx)
	m.scanning = true
	m.scanCancel = cancel

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		err := m.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if scanCtx.Err() != nil || !filter.matches(result) {
				return
			}
			p, created := m.peripheralFor(result.Address)
			p.updateFromScan(result, time.Now())
			if created {
				m.logger.Printf("BTManager: found %s (%s) [RSSI: %d]", p.GetLocalName(), p.GetAddressString(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("BTManager: scan error: %v", err)
		}
	})

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		m.scanHousekeeping(scanCtx)
	})
}

// scanHousekeeping publishes the scan list every second and forgets devices
// that stopped advertising
func (m *BTManager) scanHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.devices.DeleteFunc(func(_ string, p *peripheral) bool {
				return !p.IsConnected() && time.Since(p.GetScanLastSeen()) > m.scanTimeout
			})
			for _, addr := range removed {
				m.logger.Printf("BTManager: device timeout: %s (not seen for %v)", addr, m.scanTimeout)
			}
			m.scanDeviceListEvent.Notify(m.GetScanDevices())
		}
	}
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *BTManager) IsScanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

// FindDeviceByName returns the recently scanned device advertising name with
// the strongest signal
func (m *BTManager) FindDeviceByName(name string) (BTDevice, bool) {
	var best *peripheral
	var bestRSSI int16
	for _, p := range m.devices.Values() {
		if !p.IsRecentlyScanned() || p.GetLocalName() != name {
			continue
		}
		rssi, _ := p.GetScanRSSI()
		if best == nil || rssi > bestRSSI {
			best, bestRSSI = p, rssi
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// GetBTDeviceByAddressString returns nil when the address is unknown
func (m *BTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	if p, ok := m.devices.Load(addressString); ok {
		return p
	}
	return nil
}

// Connect blocks while the adapter establishes the link
func (m *BTManager) Connect(device BTDevice) error {
	p, err := m.lookup(device)
	if err != nil {
		return err
	}
	m.logger.Printf("BTManager: connecting to %s", p.GetAddressString())
	p.setState(Connecting)

	link, err := m.adapter.Connect(p.address, bluetooth.ConnectionParams{})
	if err != nil {
		p.setState(Disconnected)
		return fmt.Errorf("connect %s: %w", p.GetAddressString(), err)
	}
	p.setLink(&link)
	m.emitConnectedDevicesChange()
	m.logger.Printf("BTManager: connected to %s", p.GetAddressString())
	return nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	p, err := m.lookup(device)
	if err != nil {
		return err
	}
	link := p.getLink()
	if link == nil {
		p.setState(Disconnected)
		return nil
	}
	m.logger.Printf("BTManager: disconnecting from %s", p.GetAddressString())
	if err := link.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", p.GetAddressString(), err)
	}
	p.setLink(nil)
	m.emitConnectedDevicesChange()
	return nil
}

func (m *BTManager) GetConnectedDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, p := range m.devices.Values() {
		if p.IsConnected() {
			result = append(result, p)
		}
	}
	return result
}

func (m *BTManager) GetScanDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, p := range m.devices.Values() {
		if p.IsRecentlyScanned() {
			result = append(result, p)
		}
	}
	return result
}

// ListenToDeviceList receives the scan list about once per second while scanning
func (m *BTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *BTManager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}

// Shutdown disconnects everything, stops scanning and waits for the scan
// goroutines
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: shutting down")
	for _, dev := range m.GetConnectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("BTManager: %v", err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BTManager: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: shutdown complete")
}
