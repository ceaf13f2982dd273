package coach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitOutcome(t *testing.T, o *Orchestrator) Outcome {
	t.Helper()
	select {
	case out := <-o.Outcomes():
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestNewOrchestrator_PanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewOrchestrator(nil, testLogger(), 0, "") })
	assert.Panics(t, func() { NewOrchestrator(newScriptedAnalyzer(), nil, 0, "") })
}

func TestOrchestrator_SuccessFlow(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), time.Second, "")
	assert.Equal(t, PhaseIdle, o.State().Phase)

	require.True(t, o.Start(context.Background(), dists(1, 15)))
	assert.True(t, o.InFlight())
	assert.Equal(t, PhaseInFlight, o.State().Phase)
	assert.NotEmpty(t, o.State().AttemptID)

	a.replies <- reply{text: "Harika gidiyorsun!"}
	state, current := o.Complete(waitOutcome(t, o))

	require.True(t, current)
	assert.Equal(t, PhaseSucceeded, state.Phase)
	assert.Equal(t, "Harika gidiyorsun!", state.Text)
	assert.False(t, o.InFlight())
}

func TestOrchestrator_DropsTriggerWhileInFlight(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), time.Second, "")

	require.True(t, o.Start(context.Background(), dists(1, 15)))
	firstID := o.State().AttemptID

	assert.False(t, o.Start(context.Background(), dists(2, 16)))
	assert.False(t, o.Start(context.Background(), dists(3, 17)))
	assert.Equal(t, firstID, o.State().AttemptID)

	a.replies <- reply{text: "ok"}
	o.Complete(waitOutcome(t, o))
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestOrchestrator_FailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		reply  reply
		reason string
	}{
		{"empty text", reply{text: ""}, "No response from API"},
		{"blank text", reply{text: "  \n"}, "No response from API"},
		{"call error", reply{err: errors.New("quota exceeded")}, "API Error: quota exceeded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newScriptedAnalyzer()
			o := NewOrchestrator(a, testLogger(), time.Second, "")
			require.True(t, o.Start(context.Background(), dists(1, 15)))

			a.replies <- tc.reply
			state, current := o.Complete(waitOutcome(t, o))

			require.True(t, current)
			assert.Equal(t, PhaseFailed, state.Phase)
			assert.Equal(t, tc.reason, state.Reason)
			assert.False(t, o.InFlight())

			// guard cleared: the next trigger is accepted
			assert.True(t, o.Start(context.Background(), dists(1, 15)))
		})
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), 20*time.Millisecond, "")
	require.True(t, o.Start(context.Background(), dists(1, 15)))

	out := waitOutcome(t, o)
	assert.ErrorIs(t, out.Err, ErrAnalysisTimeout)

	state, _ := o.Complete(out)
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Contains(t, state.Reason, "analysis timed out")
}

func TestOrchestrator_PanickingAnalyzerFails(t *testing.T) {
	o := NewOrchestrator(panickingAnalyzer{}, testLogger(), time.Second, "")
	require.True(t, o.Start(context.Background(), dists(1, 15)))

	state, current := o.Complete(waitOutcome(t, o))
	require.True(t, current)
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Contains(t, state.Reason, "boom")
}

func TestOrchestrator_IgnoresStaleOutcome(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), time.Second, "")

	_, current := o.Complete(Outcome{AttemptID: "nope", Text: "hi"})
	assert.False(t, current)
	assert.Equal(t, PhaseIdle, o.State().Phase)

	require.True(t, o.Start(context.Background(), dists(1, 15)))
	_, current = o.Complete(Outcome{AttemptID: "other", Text: "hi"})
	assert.False(t, current)
	assert.True(t, o.InFlight())

	a.replies <- reply{text: "fine"}
	_, current = o.Complete(waitOutcome(t, o))
	assert.True(t, current)
}

func TestOrchestrator_CancelAbortsCall(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), time.Minute, "")
	require.True(t, o.Start(context.Background(), dists(1, 15)))
	<-a.prompts

	o.Cancel()
	out := waitOutcome(t, o)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestOrchestrator_PromptUsesLanguage(t *testing.T) {
	a := newScriptedAnalyzer()
	o := NewOrchestrator(a, testLogger(), time.Second, "english")
	require.True(t, o.Start(context.Background(), dists(1, 15)))

	prompt := <-a.prompts
	assert.Contains(t, prompt, "YOUR ANSWERS MUST BE IN ENGLISH\n")
	a.replies <- reply{text: "Keep going"}
	o.Complete(waitOutcome(t, o))
}
