package companion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/cyciot/cyciot-app/internal/bt"
	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// DeviceConfig selects the peripheral and the characteristic carrying the
// sensor lines
type DeviceConfig struct {
	Name               string
	ServiceUUID        string
	CharacteristicUUID string
	ConnectTimeout     time.Duration
	ScanTimeout        time.Duration
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.Name == "" {
		c.Name = DeviceName
	}
	if c.ServiceUUID == "" {
		c.ServiceUUID = ServiceUUIDSensor
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = CharUUIDSensorReadings
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	return c
}

var errConnectInProgress = errors.New("connection attempt already in progress")

const findDevicePollInterval = 200 * time.Millisecond

// DeviceHandler owns the link to the sensor unit. It finds the unit by name,
// subscribes to its reading characteristic and republishes each notification
// as a text line.
type DeviceHandler struct {
	model     *UIModel
	btManager bt.BTManagerInterface
	logger    *log.Logger
	cfg       DeviceConfig

	linesEvent  *events.ChannelEvent[string]
	statusEvent *events.ChannelEvent[sensor.ConnectionStatus]

	mu         sync.Mutex
	device     bt.BTDevice
	connecting bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeviceHandler(model *UIModel, btManager bt.BTManagerInterface, logger *log.Logger, cfg DeviceConfig) *DeviceHandler {
	if model == nil {
		panic("DeviceHandler: model cannot be nil")
	}
	if btManager == nil {
		panic("DeviceHandler: btManager cannot be nil")
	}
	if logger == nil {
		panic("DeviceHandler: logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &DeviceHandler{
		model:       model,
		btManager:   btManager,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		linesEvent:  events.NewChannelEvent[string](false),
		statusEvent: events.NewChannelEvent[sensor.ConnectionStatus](true),
		ctx:         ctx,
		cancel:      cancel,
	}
	h.statusEvent.Notify(sensor.StatusDisconnected)

	h.wg.Add(1)
	go_func_utils.SafeGo(h.logger, func() { h.watchConnections(ctx) })

	return h
}

// ListenToLines registers a channel to receive every line the sensor sends
func (h *DeviceHandler) ListenToLines(ch chan<- string) func() {
	return h.linesEvent.Listen(ch)
}

// ListenToStatus registers a channel to receive connection status changes.
// The current status is replayed on registration.
func (h *DeviceHandler) ListenToStatus(ch chan<- sensor.ConnectionStatus) func() {
	return h.statusEvent.Listen(ch)
}

func (h *DeviceHandler) setStatus(status sensor.ConnectionStatus) {
	if last, ok := h.statusEvent.Last(); ok && last == status {
		return
	}
	h.logger.Printf("DeviceHandler: status %s", status)
	h.model.SetConnectionStatus(status)
	h.statusEvent.Notify(status)
}

// Enable turns the adapter on. On failure the status becomes
// StatusBluetoothDisabled and AutoConnect will not find anything.
func (h *DeviceHandler) Enable() error {
	if err := h.btManager.Enable(); err != nil {
		h.setStatus(sensor.StatusBluetoothDisabled)
		return fmt.Errorf("failed to enable bluetooth: %w", err)
	}
	return nil
}

// AutoConnect scans for the configured device name, connects to the first
// match and subscribes to its readings. It returns ErrDeviceNotFound when the
// scan times out.
func (h *DeviceHandler) AutoConnect(ctx context.Context) error {
	h.mu.Lock()
	if h.connecting {
		h.mu.Unlock()
		return errConnectInProgress
	}
	if h.device != nil && h.device.IsConnected() {
		h.mu.Unlock()
		h.logger.Printf("DeviceHandler: already connected to %s", h.device.GetAddressString())
		return nil
	}
	h.connecting = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.connecting = false
		h.mu.Unlock()
	}()

	device, err := h.findDevice(ctx)
	if err != nil {
		h.setStatus(sensor.StatusDisconnected)
		return err
	}

	if err := h.connect(ctx, device); err != nil {
		h.setStatus(sensor.StatusDisconnected)
		return err
	}

	h.mu.Lock()
	h.device = device
	h.mu.Unlock()
	h.setStatus(sensor.StatusConnected)
	return nil
}

func (h *DeviceHandler) findDevice(ctx context.Context) (bt.BTDevice, error) {
	h.setStatus(sensor.StatusScanning)
	h.logger.Printf("DeviceHandler: scanning for %q", h.cfg.Name)
	h.btManager.StartScan(bt.ScanFilter{LocalName: h.cfg.Name})
	defer func() {
		if err := h.btManager.StopScan(); err != nil {
			h.logger.Printf("DeviceHandler: Error stopping scan: %v", err)
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, h.cfg.ScanTimeout)
	defer cancel()

	ticker := time.NewTicker(findDevicePollInterval)
	defer ticker.Stop()

	for {
		if device, ok := h.btManager.FindDeviceByName(h.cfg.Name); ok {
			h.logger.Printf("DeviceHandler: found %s (%s)", device.GetLocalName(), device.GetAddressString())
			return device, nil
		}
		select {
		case <-scanCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: no %q after %v", ErrDeviceNotFound, h.cfg.Name, h.cfg.ScanTimeout)
		case <-ticker.C:
		}
	}
}

func (h *DeviceHandler) connect(ctx context.Context, device bt.BTDevice) error {
	h.setStatus(sensor.StatusConnecting)

	if !device.IsConnected() {
		if err := h.btManager.Connect(device); err != nil {
			return fmt.Errorf("failed to initiate connection: %w", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	defer cancel()
	if err := device.WaitForConnection(waitCtx); err != nil {
		return fmt.Errorf("connection timeout: %w", err)
	}

	h.logger.Printf("DeviceHandler: Enabling notifications (service: %s, char: %s)", h.cfg.ServiceUUID, h.cfg.CharacteristicUUID)
	if err := device.EnableNotifications(h.cfg.ServiceUUID, h.cfg.CharacteristicUUID, h.onNotification); err != nil {
		if dErr := h.btManager.Disconnect(device); dErr != nil {
			h.logger.Printf("DeviceHandler: Error disconnecting: %v", dErr)
		}
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	return nil
}

// onNotification turns one characteristic value into one line
func (h *DeviceHandler) onNotification(buf []byte) {
	line := strings.TrimSpace(string(buf))
	if line == "" {
		return
	}
	h.model.SetRawLine(line)
	h.linesEvent.Notify(line)
}

// Disconnect drops the link to the current device, if any
func (h *DeviceHandler) Disconnect() error {
	h.mu.Lock()
	device := h.device
	h.device = nil
	h.mu.Unlock()

	if device == nil {
		h.setStatus(sensor.StatusDisconnected)
		return nil
	}

	h.logger.Printf("Disconnecting: %s", device.GetLocalName())
	if device.IsConnected() {
		if err := device.DisableNotifications(h.cfg.ServiceUUID, h.cfg.CharacteristicUUID); err != nil {
			h.logger.Printf("DeviceHandler: Error disabling notifications: %v", err)
		}
	}
	if err := h.btManager.Disconnect(device); err != nil {
		h.logger.Printf("DeviceHandler: Error disconnecting: %v", err)
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	h.setStatus(sensor.StatusDisconnected)
	return nil
}

// watchConnections notices links dropped by the peripheral or the adapter
func (h *DeviceHandler) watchConnections(ctx context.Context) {
	defer h.wg.Done()

	deviceChan := make(chan []bt.BTDevice, 4)
	unregister := h.btManager.ListenToConnectedDevices(deviceChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deviceChan:
			h.mu.Lock()
			device := h.device
			lost := device != nil && !device.IsConnected()
			if lost {
				h.device = nil
			}
			h.mu.Unlock()

			if lost {
				h.logger.Printf("DeviceHandler: lost connection to %s", device.GetAddressString())
				h.setStatus(sensor.StatusDisconnected)
			}
		}
	}
}

// IsConnected reports whether the sensor link is up
func (h *DeviceHandler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device != nil && h.device.IsConnected()
}

// Shutdown stops the connection watcher. The BT manager disconnects devices
// on its own shutdown.
func (h *DeviceHandler) Shutdown() {
	h.cancel()
	h.wg.Wait()
	h.logger.Printf("DeviceHandler: shutdown complete")
}
