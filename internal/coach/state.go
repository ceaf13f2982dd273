package coach

// Phase of the current analysis attempt
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInFlight
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseInFlight:
		return "InFlight"
	case PhaseSucceeded:
		return "Succeeded"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// AnalysisState is the live state of the orchestrator. Text is set when
// Succeeded, Reason when Failed.
type AnalysisState struct {
	Phase     Phase
	AttemptID string
	Text      string
	Reason    string
}

// PresentationKind is what the rider sees on the coach screen
type PresentationKind int

const (
	PresentationCollecting PresentationKind = iota
	PresentationAnalyzing
	PresentationResult
	PresentationError
)

func (k PresentationKind) String() string {
	switch k {
	case PresentationCollecting:
		return "Collecting"
	case PresentationAnalyzing:
		return "Analyzing"
	case PresentationResult:
		return "Result"
	case PresentationError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PresentationState carries the coaching text for Result and the failure
// reason for Error
type PresentationState struct {
	Kind PresentationKind
	Text string
}

func Collecting() PresentationState { return PresentationState{Kind: PresentationCollecting} }

func Analyzing() PresentationState { return PresentationState{Kind: PresentationAnalyzing} }

func Result(text string) PresentationState {
	return PresentationState{Kind: PresentationResult, Text: text}
}

func Error(message string) PresentationState {
	return PresentationState{Kind: PresentationError, Text: message}
}
