package coach

import (
	"context"
	"log"
	"time"

	"github.com/lowaak/cyciot/cyciot-app/internal/events"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// SessionConfig tunes a Session; zero values fall back to defaults
type SessionConfig struct {
	AnalysisTimeout time.Duration
	Language        string
	RebuildPolicy   RebuildPolicy
}

// Session turns a stream of raw lines into coaching states. Run owns the
// window and the orchestrator; nothing else touches them.
type Session struct {
	logger       *log.Logger
	window       *Window
	orchestrator *Orchestrator

	stateEvent        *events.ChannelEvent[PresentationState]
	readingEvent      *events.ChannelEvent[sensor.Reading]
	analysisEvent     *events.ChannelEvent[AnalysisState]
	windowStatusEvent *events.ChannelEvent[WindowStatus]
}

func NewSession(analyzer Analyzer, logger *log.Logger, cfg SessionConfig) *Session {
	if logger == nil {
		panic("Session: logger cannot be nil")
	}
	return &Session{
		logger:            logger,
		window:            NewWindow(cfg.RebuildPolicy),
		orchestrator:      NewOrchestrator(analyzer, logger, cfg.AnalysisTimeout, cfg.Language),
		stateEvent:        events.NewChannelEvent[PresentationState](true),
		readingEvent:      events.NewChannelEvent[sensor.Reading](true),
		analysisEvent:     events.NewChannelEvent[AnalysisState](true),
		windowStatusEvent: events.NewChannelEvent[WindowStatus](true),
	}
}

// ListenToState registers a channel for presentation states. The current
// state is replayed to new listeners.
func (s *Session) ListenToState(ch chan<- PresentationState) func() {
	return s.stateEvent.Listen(ch)
}

// ListenToReadings registers a channel for every decoded reading
func (s *Session) ListenToReadings(ch chan<- sensor.Reading) func() {
	return s.readingEvent.Listen(ch)
}

// ListenToAnalysis registers a channel for analysis state transitions
func (s *Session) ListenToAnalysis(ch chan<- AnalysisState) func() {
	return s.analysisEvent.Listen(ch)
}

// ListenToWindowStatus registers a channel for window fill/mode updates
func (s *Session) ListenToWindowStatus(ch chan<- WindowStatus) func() {
	return s.windowStatusEvent.Listen(ch)
}

// Run processes lines until ctx is done or lines is closed. An analysis still
// in flight at that point is cancelled and its outcome discarded.
func (s *Session) Run(ctx context.Context, lines <-chan string) error {
	s.logger.Printf("Session: collecting (window %d, carry-over %d, policy %s)",
		WindowSize, CarryOverSize, s.window.Policy())
	s.stateEvent.Notify(Collecting())
	s.analysisEvent.Notify(s.orchestrator.State())
	s.windowStatusEvent.Notify(s.window.Status())

	defer s.orchestrator.Cancel()

	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("Session: stopping: %v", ctx.Err())
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				s.logger.Printf("Session: line stream closed")
				return nil
			}
			s.handleLine(ctx, line)

		case outcome := <-s.orchestrator.Outcomes():
			s.handleOutcome(outcome)
		}
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	reading, ok := sensor.Decode(line)
	if !ok {
		s.logger.Printf("Session: ignoring unrecognized line %q", line)
		return
	}
	s.readingEvent.Notify(reading)

	snapshot, trigger := s.window.Ingest(reading, s.orchestrator.InFlight())
	s.windowStatusEvent.Notify(s.window.Status())
	if !trigger {
		return
	}

	if s.orchestrator.Start(ctx, snapshot) {
		s.analysisEvent.Notify(s.orchestrator.State())
		s.stateEvent.Notify(Analyzing())
	}
}

func (s *Session) handleOutcome(outcome Outcome) {
	state, current := s.orchestrator.Complete(outcome)
	if !current {
		return
	}

	switch state.Phase {
	case PhaseSucceeded:
		s.window.BeginReplenishment()
		s.stateEvent.Notify(Result(state.Text))
	case PhaseFailed:
		s.window.DiscardCarryOver()
		s.logger.Printf("Session: analysis failed: %s", state.Reason)
		s.stateEvent.Notify(Error(state.Reason))
	}
	s.analysisEvent.Notify(state)
	s.windowStatusEvent.Notify(s.window.Status())
}
