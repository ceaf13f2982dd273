package coach

import (
	"context"
	"io"
	"log"
	"sync/atomic"
)

type reply struct {
	text string
	err  error
}

// scriptedAnalyzer blocks each call until the test sends a reply
type scriptedAnalyzer struct {
	calls   atomic.Int32
	prompts chan string
	replies chan reply
}

func newScriptedAnalyzer() *scriptedAnalyzer {
	return &scriptedAnalyzer{
		prompts: make(chan string, 16),
		replies: make(chan reply),
	}
}

func (a *scriptedAnalyzer) Generate(ctx context.Context, prompt string) (string, error) {
	a.calls.Add(1)
	a.prompts <- prompt
	select {
	case r := <-a.replies:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Generate(context.Context, string) (string, error) {
	panic("boom")
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
