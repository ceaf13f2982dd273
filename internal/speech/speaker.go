package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
)

const (
	DefaultCommand = "espeak-ng"
	DefaultLocale  = "tr"
)

// Speaker reads text aloud. Stop interrupts whatever is being spoken.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// CommandSpeaker speaks by running an external TTS program with the text as
// its last argument. A new Speak interrupts the previous one.
type CommandSpeaker struct {
	command string
	args    []string
	logger  *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	current uint64
}

func NewCommandSpeaker(command string, args []string, logger *log.Logger) *CommandSpeaker {
	if logger == nil {
		panic("CommandSpeaker: logger cannot be nil")
	}
	if command == "" {
		command = DefaultCommand
		if len(args) == 0 {
			args = []string{"-v", DefaultLocale}
		}
	}
	return &CommandSpeaker{
		command: command,
		args:    append([]string(nil), args...),
		logger:  logger,
	}
}

// Speak blocks until the utterance finishes or is interrupted. An
// interrupted utterance is not an error.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.current++
	id := s.current
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.current == id {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(runCtx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s failed: %w: %s", s.command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (s *CommandSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.logger.Printf("CommandSpeaker: stopping speech")
		s.cancel()
		s.cancel = nil
	}
}

// NopSpeaker discards everything. Used when speech is disabled.
type NopSpeaker struct{}

func (NopSpeaker) Speak(context.Context, string) error { return nil }

func (NopSpeaker) Stop() {}
