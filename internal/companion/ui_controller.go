package companion

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/speech"
)

// DeviceConnector is the part of DeviceHandler the controller drives
type DeviceConnector interface {
	AutoConnect(ctx context.Context) error
	Disconnect() error
}

var _ DeviceConnector = (*DeviceHandler)(nil)

// UIController handles UI events and coordinates with the UIModel. It also
// voices coaching results.
type UIController struct {
	model     *UIModel
	connector DeviceConnector
	speaker   speech.Speaker
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewUIController(model *UIModel, connector DeviceConnector, speaker speech.Speaker, logger *log.Logger) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if connector == nil {
		panic("UIController: connector cannot be nil")
	}
	if speaker == nil {
		panic("UIController: speaker cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &UIController{
		model:     model,
		connector: connector,
		speaker:   speaker,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	c.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { c.listenToCoachState() })

	c.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { c.listenToMuted() })

	return c
}

func (c *UIController) listenToCoachState() {
	defer c.wg.Done()

	ch := make(chan coach.PresentationState, 4)
	unregister := c.model.ListenToCoachState(ch)
	defer unregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		case state := <-ch:
			c.voice(state)
		}
	}
}

func (c *UIController) listenToMuted() {
	defer c.wg.Done()

	ch := make(chan bool, 1)
	unregister := c.model.ListenToMuted(ch)
	defer unregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		case muted := <-ch:
			if muted {
				c.speaker.Stop()
			}
		}
	}
}

// voice stops whatever is being said and, for a result or an error, starts
// saying the new text
func (c *UIController) voice(state coach.PresentationState) {
	var text string
	switch state.Kind {
	case coach.PresentationResult:
		text = state.Text
	case coach.PresentationError:
		text = TextErrorPrefix + state.Text
	}

	if text == "" || c.model.IsMuted() {
		c.speaker.Stop()
		return
	}

	c.wg.Add(1)
	go_func_utils.SafeGo(c.logger, func() {
		defer c.wg.Done()
		if err := c.speaker.Speak(c.ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Printf("UIController: speech failed: %v", err)
		}
	})
}

// OnConnect scans for the sensor unit and connects in the background
func (c *UIController) OnConnect() {
	c.wg.Add(1)
	go_func_utils.SafeGo(c.logger, func() {
		defer c.wg.Done()
		if err := c.connector.AutoConnect(c.ctx); err != nil {
			c.logger.Printf("Connection failed: %v", err)
		}
	})
}

func (c *UIController) OnDisconnect() {
	if err := c.connector.Disconnect(); err != nil {
		c.logger.Printf("Disconnect failed: %v", err)
	}
}

func (c *UIController) OnModeChange(mode UIMode) {
	c.model.SetMode(mode)
}

// ToggleMute flips speech output. Muting silences the current utterance.
func (c *UIController) ToggleMute() {
	muted := !c.model.IsMuted()
	c.model.SetMuted(muted)
	if muted {
		c.logger.Println("Speech muted")
	} else {
		c.logger.Println("Speech unmuted")
	}
}

// OnEscapeKey handles when the Escape key is pressed
func (c *UIController) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

// Shutdown stops all goroutines and waits for them to finish
func (c *UIController) Shutdown() {
	c.logger.Println("UIController: Shutting down")
	c.cancel()
	c.speaker.Stop()
	c.wg.Wait()
	c.logger.Println("UIController: Shutdown complete")
}
