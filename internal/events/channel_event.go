package events

import (
	"sync"
	"sync/atomic"
)

// ChannelEvent provides pub/sub behavior using channels
// T is the type of the value sent to channels
type ChannelEvent[T any] struct {
	mu                    sync.RWMutex
	channels              map[uint64]chan<- T
	nextID                uint64
	sendLastEventOnListen bool
	lastEvent             *T
	dropped               atomic.Uint64
}

// NewChannelEvent creates a new ChannelEvent instance
// sendLastEventOnListen: if true, the last Notify value is replayed to new listeners
func NewChannelEvent[T any](sendLastEventOnListen bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:              make(map[uint64]chan<- T),
		sendLastEventOnListen: sendLastEventOnListen,
	}
}

// Listen registers a channel to receive values when Notify is invoked
// Returns a deregistration function that can be called to remove the listener
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	var replay *T
	if e.sendLastEventOnListen && e.lastEvent != nil {
		v := *e.lastEvent
		replay = &v
	}
	e.mu.Unlock()

	// outside the lock, a listener may call back into Listen/Notify
	if replay != nil {
		select {
		case ch <- *replay:
		default:
			e.dropped.Add(1)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.channels, id)
			e.mu.Unlock()
		})
	}
}

// Notify sends the provided value to all registered channels
// Sends are non-blocking: a full channel is skipped and counted in Dropped
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.sendLastEventOnListen {
		v := value
		e.lastEvent = &v
	}
	channelsCopy := make([]chan<- T, 0, len(e.channels))
	for _, ch := range e.channels {
		channelsCopy = append(channelsCopy, ch)
	}
	e.mu.Unlock()

	for _, ch := range channelsCopy {
		select {
		case ch <- value:
		default:
			e.dropped.Add(1)
		}
	}
}

// Last returns the last notified value if this event remembers it
func (e *ChannelEvent[T]) Last() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastEvent == nil {
		var zero T
		return zero, false
	}
	return *e.lastEvent, true
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}

// Dropped returns how many sends were skipped because a listener channel was full
func (e *ChannelEvent[T]) Dropped() uint64 {
	return e.dropped.Load()
}
