package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

const (
	// DefaultAnalysisTimeout bounds a single analysis call
	DefaultAnalysisTimeout = 30 * time.Second

	ReasonNoResponse = "No response from API"
)

// ErrAnalysisTimeout is reported when the analysis call exceeds its deadline
var ErrAnalysisTimeout = errors.New("analysis timed out")

// Analyzer produces coaching text for a prompt. An empty string with a nil
// error means the service answered without text.
type Analyzer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Outcome is the result of one analysis attempt
type Outcome struct {
	AttemptID string
	Text      string
	Err       error
}

// Orchestrator runs at most one analysis at a time. Start and Complete must
// be called from the same goroutine; only the external call runs elsewhere
// and it reports back through Outcomes.
type Orchestrator struct {
	analyzer Analyzer
	logger   *log.Logger
	timeout  time.Duration
	language string

	state         AnalysisState
	inFlight      bool
	cancelAttempt context.CancelFunc
	outcomes      chan Outcome
}

func NewOrchestrator(analyzer Analyzer, logger *log.Logger, timeout time.Duration, language string) *Orchestrator {
	if analyzer == nil {
		panic("Orchestrator: analyzer cannot be nil")
	}
	if logger == nil {
		panic("Orchestrator: logger cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Orchestrator{
		analyzer: analyzer,
		logger:   logger,
		timeout:  timeout,
		language: language,
		state:    AnalysisState{Phase: PhaseIdle},
		// one attempt at a time, so the single pending outcome never blocks the sender
		outcomes: make(chan Outcome, 1),
	}
}

// Outcomes delivers the result of the attempt started by Start
func (o *Orchestrator) Outcomes() <-chan Outcome {
	return o.outcomes
}

func (o *Orchestrator) InFlight() bool {
	return o.inFlight
}

func (o *Orchestrator) State() AnalysisState {
	return o.state
}

// Start launches an analysis of snapshot. A trigger that arrives while an
// attempt is in flight is dropped and Start returns false.
func (o *Orchestrator) Start(ctx context.Context, snapshot []sensor.Reading) bool {
	if o.inFlight {
		o.logger.Printf("Orchestrator: analysis %s in flight, dropping trigger", o.state.AttemptID)
		return false
	}

	attemptID := uuid.NewString()
	o.inFlight = true
	o.state = AnalysisState{Phase: PhaseInFlight, AttemptID: attemptID}

	prompt := BuildPrompt(snapshot, o.language)
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	o.cancelAttempt = cancel

	o.logger.Printf("Orchestrator: starting analysis %s over %d readings", attemptID, len(snapshot))

	go_func_utils.SafeGoRecover(o.logger, func() {
		defer cancel()
		text, err := o.analyzer.Generate(attemptCtx, prompt)
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v", ErrAnalysisTimeout, o.timeout)
		}
		o.outcomes <- Outcome{AttemptID: attemptID, Text: text, Err: err}
	}, func(err error) {
		cancel()
		o.outcomes <- Outcome{AttemptID: attemptID, Err: err}
	})

	return true
}

// Complete applies an outcome and clears the in-flight guard. Outcomes of
// attempts other than the current one are ignored and reported as false.
func (o *Orchestrator) Complete(outcome Outcome) (AnalysisState, bool) {
	if !o.inFlight || outcome.AttemptID != o.state.AttemptID {
		o.logger.Printf("Orchestrator: ignoring stale outcome %s", outcome.AttemptID)
		return o.state, false
	}

	o.inFlight = false
	o.cancelAttempt = nil

	switch {
	case outcome.Err != nil:
		o.state = AnalysisState{
			Phase:     PhaseFailed,
			AttemptID: outcome.AttemptID,
			Reason:    "API Error: " + outcome.Err.Error(),
		}
	case strings.TrimSpace(outcome.Text) == "":
		o.state = AnalysisState{
			Phase:     PhaseFailed,
			AttemptID: outcome.AttemptID,
			Reason:    ReasonNoResponse,
		}
	default:
		o.state = AnalysisState{
			Phase:     PhaseSucceeded,
			AttemptID: outcome.AttemptID,
			Text:      outcome.Text,
		}
	}

	o.logger.Printf("Orchestrator: analysis %s %s", outcome.AttemptID, o.state.Phase)
	return o.state, true
}

// Cancel aborts the in-flight call, if any. Its outcome still arrives on
// Outcomes and should be drained or discarded by the owner.
func (o *Orchestrator) Cancel() {
	if o.cancelAttempt != nil {
		o.cancelAttempt()
	}
}
