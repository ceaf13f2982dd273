package companion

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cyciot/cyciot-app/internal/bt"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

func newTestDevice() *MockSensorDevice {
	return NewMockSensorDevice(testLogger(), MockSensorDeviceConfig{Address: "00:11:22:33:44:55", LocalName: DeviceName})
}

func TestMockSensorValues_LineDecodes(t *testing.T) {
	values := MockSensorValues{
		AccelX: 1.5, AccelY: -0.25, AccelZ: 9.75,
		GyroX: 0.5, GyroY: -1, GyroZ: 2,
		DistanceLeft: 42, DistanceRight: 17.5, BPM: 131,
	}
	line := values.Line()
	assert.Equal(t, "AX:1.50 AY:-0.25 AZ:9.75 GX:0.50 GY:-1.00 GZ:2.00 DL:42.0 DR:17.5 BPM:131", line)

	reading, ok := sensor.Decode(line)
	require.True(t, ok)
	assert.Equal(t, sensor.AllInOne{
		AccelX: 1.5, AccelY: -0.25, AccelZ: 9.75,
		GyroX: 0.5, GyroY: -1, GyroZ: 2,
		DistanceLeft: 42, DistanceRight: 17.5, BPM: 131,
	}, reading)
}

func TestMockSensorDevice_NotificationsNeedConnection(t *testing.T) {
	d := newTestDevice()

	assert.ErrorIs(t, d.EnableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings, func([]byte) {}), bt.ErrNotConnected)
	assert.ErrorIs(t, d.Inject("DL:1"), bt.ErrNotConnected)

	d.SetConnected(true)
	assert.Error(t, d.EnableNotifications("0000180d-0000-1000-8000-00805f9b34fb", CharUUIDSensorReadings, func([]byte) {}))
	assert.Error(t, d.EnableNotifications(ServiceUUIDSensor, "00002a37-0000-1000-8000-00805f9b34fb", func([]byte) {}))
	assert.Error(t, d.EnableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings, nil))

	var got []string
	require.NoError(t, d.EnableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings, func(b []byte) { got = append(got, string(b)) }))
	require.NoError(t, d.EmitReading())
	require.NoError(t, d.Inject("DL:1 DR:2"))
	assert.Equal(t, []string{d.Values().Line(), "DL:1 DR:2"}, got)

	require.NoError(t, d.DisableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings))
	assert.ErrorIs(t, d.Inject("DL:1"), bt.ErrNotConnected)

	d.SetConnected(false)
	assert.False(t, d.IsConnected())
	assert.Equal(t, bt.Disconnected, d.GetState())
}

func TestMockSensorDevice_HTTPState(t *testing.T) {
	d := newTestDevice()
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state MockDeviceState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, DeviceName, state.LocalName)
	assert.False(t, state.Connected)
	assert.Equal(t, 92, state.Values.BPM)

	page, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer page.Body.Close()
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html", page.Header.Get("Content-Type"))

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestMockSensorDevice_HTTPSetValues(t *testing.T) {
	d := newTestDevice()
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/set?dl=33.5&bpm=140&ax=-2", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	values := d.Values()
	assert.Equal(t, float32(33.5), values.DistanceLeft)
	assert.Equal(t, 140, values.BPM)
	assert.Equal(t, float32(-2), values.AccelX)
	assert.Equal(t, float32(95), values.DistanceRight)

	for _, query := range []string{"dl=abc", "bpm=-1", "bpm=fast"} {
		resp, err := http.Post(srv.URL+"/api/set?"+query, "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}

	get, err := http.Get(srv.URL + "/api/set?bpm=100")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
	assert.Equal(t, 140, d.Values().BPM)
}

func TestMockSensorDevice_HTTPInject(t *testing.T) {
	d := newTestDevice()
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/inject", "text/plain", strings.NewReader("DL:5 DR:6"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	got := make(chan string, 4)
	d.SetConnected(true)
	require.NoError(t, d.EnableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings, func(b []byte) { got <- string(b) }))

	resp, err = http.Post(srv.URL+"/api/inject", "text/plain", strings.NewReader("DL:5 DR:6\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DL:5 DR:6", <-got)

	resp, err = http.Post(srv.URL+"/api/inject?line=X:1Y:2Z:3", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "X:1Y:2Z:3", <-got)

	resp, err = http.Post(srv.URL+"/api/inject", "text/plain", strings.NewReader("  "))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMockBTManager_ScanFindsOnlyMatchingName(t *testing.T) {
	m := NewMockBTManager(testLogger(), MockConfig{})
	defer m.Shutdown()

	_, ok := m.FindDeviceByName(DeviceName)
	assert.False(t, ok, "invisible before a scan")

	m.StartScan(bt.ScanFilter{LocalName: "Other"})
	_, ok = m.FindDeviceByName(DeviceName)
	assert.False(t, ok)
	assert.Empty(t, m.GetScanDevices())

	m.StartScan(bt.ScanFilter{LocalName: DeviceName})
	assert.True(t, m.IsScanning())
	dev, ok := m.FindDeviceByName(DeviceName)
	require.True(t, ok)
	assert.Equal(t, "00:11:22:33:44:55", dev.GetAddressString())
	assert.Len(t, m.GetScanDevices(), 1)
	assert.Same(t, m.Device(), m.GetBTDeviceByAddressString("00:11:22:33:44:55"))
	assert.Nil(t, m.GetBTDeviceByAddressString("nope"))

	require.NoError(t, m.StopScan())
	assert.False(t, m.IsScanning())
}

func TestMockBTManager_ConnectEmitsReadings(t *testing.T) {
	m := NewMockBTManager(testLogger(), MockConfig{Interval: 5 * time.Millisecond})
	defer m.Shutdown()

	connected := make(chan []bt.BTDevice, 4)
	defer m.ListenToConnectedDevices(connected)()

	require.NoError(t, m.Connect(m.Device()))
	assert.Len(t, m.GetConnectedDevices(), 1)

	got := make(chan string, 16)
	require.NoError(t, m.Device().EnableNotifications(ServiceUUIDSensor, CharUUIDSensorReadings, func(b []byte) {
		select {
		case got <- string(b):
		default:
		}
	}))
	select {
	case line := <-got:
		assert.Equal(t, m.Device().Values().Line(), line)
	case <-time.After(time.Second):
		t.Fatal("no reading emitted")
	}

	require.NoError(t, m.Disconnect(m.Device()))
	assert.Empty(t, m.GetConnectedDevices())
	assert.Error(t, m.Connect(nil))
}
