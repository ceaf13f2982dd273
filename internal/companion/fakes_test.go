package companion

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeCoachSource publishes whatever the test pushes
type fakeCoachSource struct {
	states   *events.ChannelEvent[coach.PresentationState]
	readings *events.ChannelEvent[sensor.Reading]
	windows  *events.ChannelEvent[coach.WindowStatus]
}

func newFakeCoachSource() *fakeCoachSource {
	return &fakeCoachSource{
		states:   events.NewChannelEvent[coach.PresentationState](true),
		readings: events.NewChannelEvent[sensor.Reading](false),
		windows:  events.NewChannelEvent[coach.WindowStatus](true),
	}
}

func (f *fakeCoachSource) ListenToState(ch chan<- coach.PresentationState) func() {
	return f.states.Listen(ch)
}

func (f *fakeCoachSource) ListenToReadings(ch chan<- sensor.Reading) func() {
	return f.readings.Listen(ch)
}

func (f *fakeCoachSource) ListenToWindowStatus(ch chan<- coach.WindowStatus) func() {
	return f.windows.Listen(ch)
}

func newTestModel() (*UIModel, *fakeCoachSource, chan string) {
	source := newFakeCoachSource()
	logChan := make(chan string, 16)
	return NewUIModel(source, testLogger(), logChan), source, logChan
}

// recordingSpeaker remembers what it was asked to say
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	stops  int
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *recordingSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *recordingSpeaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeConnector struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	err         error
}

func (f *fakeConnector) AutoConnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.err
}

func (f *fakeConnector) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeConnector) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}
