package coach

import (
	"fmt"

	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

const (
	// WindowSize is the number of readings sent to each analysis
	WindowSize = 15
	// CarryOverSize is how many readings of the analyzed window are kept for the next one
	CarryOverSize = 5
	// ReplenishSize is how many new readings are collected after a successful analysis
	ReplenishSize = WindowSize - CarryOverSize
)

// Mode is the window's collection mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeReplenishing
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeReplenishing:
		return "Replenishing"
	default:
		return "Unknown"
	}
}

// RebuildPolicy chooses which 10 readings follow the carry-over when the
// window is rebuilt at the end of replenishment
type RebuildPolicy int

const (
	// RebuildFromFresh uses the readings that arrived during replenishment
	RebuildFromFresh RebuildPolicy = iota
	// RebuildFromWindowTail uses the last 10 readings of the window as it was
	// before replenishment started. Readings that arrive while replenishing
	// only advance the counter.
	RebuildFromWindowTail
)

func (p RebuildPolicy) String() string {
	switch p {
	case RebuildFromFresh:
		return "fresh"
	case RebuildFromWindowTail:
		return "window-tail"
	default:
		return "unknown"
	}
}

// ParseRebuildPolicy accepts the names produced by String
func ParseRebuildPolicy(s string) (RebuildPolicy, error) {
	switch s {
	case "fresh", "":
		return RebuildFromFresh, nil
	case "window-tail":
		return RebuildFromWindowTail, nil
	default:
		return RebuildFromFresh, fmt.Errorf("unknown rebuild policy %q", s)
	}
}

// WindowStatus is a read-only summary of the window for display
type WindowStatus struct {
	Len            int
	Mode           Mode
	ReplenishCount int
	CarryOverLen   int
}

// Window is the rolling buffer of recent readings. It is not safe for
// concurrent use; a Session confines it to its processing goroutine.
type Window struct {
	policy RebuildPolicy

	ring  [WindowSize]sensor.Reading
	head  int // index of the oldest reading
	count int

	mode           Mode
	replenishCount int
	fresh          [ReplenishSize]sensor.Reading

	// pending is captured when a trigger fires and becomes the carry-over
	// only if that analysis succeeds
	pending    [CarryOverSize]sensor.Reading
	hasPending bool
	carry      [CarryOverSize]sensor.Reading
	hasCarry   bool
}

func NewWindow(policy RebuildPolicy) *Window {
	return &Window{policy: policy}
}

// Ingest adds one reading. When the window asks for an analysis it returns
// trigger=true along with a copy of the readings to analyze.
func (w *Window) Ingest(r sensor.Reading, analysisInFlight bool) ([]sensor.Reading, bool) {
	if w.mode == ModeReplenishing {
		w.fresh[w.replenishCount] = r
		w.replenishCount++
		if w.replenishCount < ReplenishSize {
			return nil, false
		}
		w.rebuild()
		w.capturePending()
		return w.Readings(), true
	}

	w.push(r)
	if w.count == WindowSize && !analysisInFlight {
		w.capturePending()
		return w.Readings(), true
	}
	return nil, false
}

// BeginReplenishment is called once the triggered analysis succeeded
func (w *Window) BeginReplenishment() {
	if !w.hasPending {
		return
	}
	w.carry = w.pending
	w.hasCarry = true
	w.clearPending()
	w.mode = ModeReplenishing
	w.replenishCount = 0
}

// DiscardCarryOver is called when the triggered analysis failed. The window
// stays in Normal mode.
func (w *Window) DiscardCarryOver() {
	w.clearPending()
}

func (w *Window) rebuild() {
	var next [WindowSize]sensor.Reading
	copy(next[:CarryOverSize], w.carry[:])
	switch w.policy {
	case RebuildFromWindowTail:
		tail := w.Readings()
		if len(tail) > ReplenishSize {
			tail = tail[len(tail)-ReplenishSize:]
		}
		copy(next[CarryOverSize:], tail)
		w.count = CarryOverSize + len(tail)
	default:
		copy(next[CarryOverSize:], w.fresh[:])
		w.count = WindowSize
	}
	w.ring = next
	w.head = 0

	w.carry = [CarryOverSize]sensor.Reading{}
	w.hasCarry = false
	w.fresh = [ReplenishSize]sensor.Reading{}
	w.replenishCount = 0
	w.mode = ModeNormal
}

func (w *Window) push(r sensor.Reading) {
	if w.count < WindowSize {
		w.ring[(w.head+w.count)%WindowSize] = r
		w.count++
		return
	}
	// full: overwrite the oldest
	w.ring[w.head] = r
	w.head = (w.head + 1) % WindowSize
}

func (w *Window) capturePending() {
	all := w.Readings()
	if len(all) < CarryOverSize {
		w.clearPending()
		return
	}
	copy(w.pending[:], all[len(all)-CarryOverSize:])
	w.hasPending = true
}

func (w *Window) clearPending() {
	w.pending = [CarryOverSize]sensor.Reading{}
	w.hasPending = false
}

// Readings returns the window contents oldest first
func (w *Window) Readings() []sensor.Reading {
	out := make([]sensor.Reading, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.ring[(w.head+i)%WindowSize]
	}
	return out
}

// CarryOver returns the active carry-over: 5 readings while replenishing,
// nil otherwise
func (w *Window) CarryOver() []sensor.Reading {
	if !w.hasCarry {
		return nil
	}
	out := make([]sensor.Reading, CarryOverSize)
	copy(out, w.carry[:])
	return out
}

func (w *Window) Len() int { return w.count }

func (w *Window) Mode() Mode { return w.mode }

func (w *Window) ReplenishCount() int { return w.replenishCount }

func (w *Window) Policy() RebuildPolicy { return w.policy }

func (w *Window) Status() WindowStatus {
	carry := 0
	if w.hasCarry {
		carry = CarryOverSize
	}
	return WindowStatus{
		Len:            w.count,
		Mode:           w.mode,
		ReplenishCount: w.replenishCount,
		CarryOverLen:   carry,
	}
}
