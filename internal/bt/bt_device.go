package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cyciot/cyciot-app/internal/safe_map"
	"tinygo.org/x/bluetooth"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota
	Connecting
	Connected
)

func (s BTDeviceState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ErrNotConnected is returned by GATT operations on a device without a link
var ErrNotConnected = errors.New("device not connected")

// BTDevice is a peripheral seen by a scan. Once connected it can stream
// notifications from one of its characteristics.
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetScanRSSI() (int16, error)
	GetScanLastSeen() time.Time
	IsRecentlyScanned() bool
	IsConnected() bool
	GetState() BTDeviceState
	HasServiceUUID(uuid string) bool
	WaitForConnection(ctx context.Context) error
	EnableNotifications(serviceUuid string, characteristicUuid string, onData func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
}

type peripheral struct {
	address     bluetooth.Address
	scanTimeout time.Duration
	logger      *log.Logger

	mu           sync.RWMutex
	localName    string
	rssi         int16
	hasRSSI      bool
	lastSeen     time.Time
	serviceUuids []string
	state        BTDeviceState
	link         *bluetooth.Device // nil unless connected

	// gattMu serializes discovery and notification setup on the link
	gattMu          sync.Mutex
	services        *safe_map.SafeMap[string, *bluetooth.DeviceService]
	characteristics *safe_map.SafeMap[string, *bluetooth.DeviceCharacteristic]
	charsDiscovered *safe_map.SafeMap[string, bool]
	servicesLoaded  bool
}

func newPeripheral(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *peripheral {
	if logger == nil {
		panic("peripheral: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		panic("peripheral: scanTimeout must be > 0")
	}
	return &peripheral{
		address:         address,
		scanTimeout:     scanTimeout,
		logger:          logger,
		localName:       "Unknown",
		lastSeen:        time.Unix(0, 0),
		services:        safe_map.NewSafeMap[string, *bluetooth.DeviceService](),
		characteristics: safe_map.NewSafeMap[string, *bluetooth.DeviceCharacteristic](),
		charsDiscovered: safe_map.NewSafeMap[string, bool](),
	}
}

func (p *peripheral) GetAddressString() string {
	return p.address.String()
}

func (p *peripheral) GetLocalName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.localName
}

func (p *peripheral) GetScanRSSI() (int16, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasRSSI {
		return 0, errors.New("no rssi available")
	}
	return p.rssi, nil
}

func (p *peripheral) GetScanLastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

func (p *peripheral) IsRecentlyScanned() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasRSSI && time.Since(p.lastSeen) <= p.scanTimeout
}

func (p *peripheral) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.link != nil
}

func (p *peripheral) GetState() BTDeviceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *peripheral) HasServiceUUID(uuid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.serviceUuids {
		if u == uuid {
			return true
		}
	}
	return false
}

// WaitForConnection blocks until the link is up or ctx ends
func (p *peripheral) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection to %s: %w", p.GetAddressString(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *peripheral) EnableNotifications(serviceUuidStr, characteristicUuidStr string, onData func(buf []byte)) error {
	if onData == nil {
		return errors.New("notification callback cannot be nil")
	}
	return p.setNotifications(serviceUuidStr, characteristicUuidStr, onData)
}

func (p *peripheral) DisableNotifications(serviceUuidStr, characteristicUuidStr string) error {
	return p.setNotifications(serviceUuidStr, characteristicUuidStr, nil)
}

func (p *peripheral) setNotifications(serviceUuidStr, characteristicUuidStr string, onData func(buf []byte)) error {
	p.gattMu.Lock()
	defer p.gattMu.Unlock()

	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}
	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	characteristic, err := p.characteristic(serviceUuid, characteristicUuid)
	if err != nil {
		return err
	}

	// a nil callback turns notifications off
	if err := characteristic.EnableNotifications(onData); err != nil {
		return fmt.Errorf("failed to set notifications on %s: %w", characteristicUuidStr, err)
	}
	p.logger.Printf("BTDevice: notifications %s for %s", onOff(onData != nil), characteristicUuidStr)
	return nil
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// service looks the service up in the cache, discovering every service on
// first use. Discovering services one at a time can interrupt services that
// are already in use.
func (p *peripheral) service(uuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	key := uuid.String()
	if svc, ok := p.services.Load(key); ok {
		return svc, nil
	}

	if !p.servicesLoaded {
		p.mu.RLock()
		link := p.link
		p.mu.RUnlock()
		if link == nil {
			return nil, ErrNotConnected
		}

		discovered, err := link.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		for i := range discovered {
			svc := &discovered[i]
			p.services.Store(svc.UUID().String(), svc)
		}
		p.servicesLoaded = true
		p.logger.Printf("BTDevice: discovered %d services on %s", len(discovered), p.GetAddressString())
	}

	svc, ok := p.services.Load(key)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", key)
	}
	return svc, nil
}

func (p *peripheral) characteristic(serviceUuid, charUuid bluetooth.UUID) (*bluetooth.DeviceCharacteristic, error) {
	serviceKey := serviceUuid.String()
	key := serviceKey + "_" + charUuid.String()
	if c, ok := p.characteristics.Load(key); ok {
		return c, nil
	}

	if discovered, _ := p.charsDiscovered.Load(serviceKey); !discovered {
		svc, err := p.service(serviceUuid)
		if err != nil {
			return nil, err
		}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %s: %w", serviceKey, err)
		}
		for i := range chars {
			c := &chars[i]
			p.characteristics.Store(serviceKey+"_"+c.UUID().String(), c)
		}
		p.charsDiscovered.Store(serviceKey, true)
	}

	c, ok := p.characteristics.Load(key)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charUuid.String(), serviceKey)
	}
	return c, nil
}

func (p *peripheral) updateFromScan(result bluetooth.ScanResult, seen time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name := result.LocalName(); name != "" {
		p.localName = name
	}
	p.rssi = result.RSSI
	p.hasRSSI = true
	p.lastSeen = seen
	if uuids := result.ServiceUUIDs(); len(uuids) > 0 {
		p.serviceUuids = p.serviceUuids[:0]
		for _, u := range uuids {
			p.serviceUuids = append(p.serviceUuids, u.String())
		}
	}
}

func (p *peripheral) setState(state BTDeviceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *peripheral) getLink() *bluetooth.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.link
}

// setLink records the connection. Losing the link drops the GATT cache since
// handles are not valid across connections.
func (p *peripheral) setLink(link *bluetooth.Device) {
	p.mu.Lock()
	p.link = link
	if link != nil {
		p.state = Connected
	} else {
		p.state = Disconnected
	}
	p.mu.Unlock()

	if link == nil {
		p.gattMu.Lock()
		p.services.Clear()
		p.characteristics.Clear()
		p.charsDiscovered.Clear()
		p.servicesLoaded = false
		p.gattMu.Unlock()
	}
}
