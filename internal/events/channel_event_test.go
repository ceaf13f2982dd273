package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelEvent(t *testing.T) {
	event := NewChannelEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.Equal(t, uint64(0), event.Dropped())

	_, ok := event.Last()
	assert.False(t, ok)
}

func TestChannelEvent_DeliversLinesInOrder(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	defer unregister()

	event.Notify("AX:0.1 AY:0.2")
	event.Notify("X:1.0 Y:2.0 Z:3.0")
	event.Notify("DL:10 DR:20")

	assert.Equal(t, "AX:0.1 AY:0.2", <-ch)
	assert.Equal(t, "X:1.0 Y:2.0 Z:3.0", <-ch)
	assert.Equal(t, "DL:10 DR:20", <-ch)
}

func TestChannelEvent_Unregister(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	unregister()
	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify(3)
	select {
	case v := <-ch:
		t.Errorf("unexpected value after unregister: %d", v)
	default:
	}
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 4)
	ch2 := make(chan int, 4)
	defer event.Listen(ch1)()
	defer event.Listen(ch2)()

	event.Notify(15)

	assert.Equal(t, 15, <-ch1)
	assert.Equal(t, 15, <-ch2)
}

func TestChannelEvent_ReplaysLastToNewListener(t *testing.T) {
	event := NewChannelEvent[string](true)

	early := make(chan string, 1)
	defer event.Listen(early)()
	select {
	case v := <-early:
		t.Fatalf("nothing notified yet, got %q", v)
	default:
	}

	event.Notify("Collecting")
	event.Notify("Analyzing")
	<-early

	late := make(chan string, 1)
	defer event.Listen(late)()

	select {
	case v := <-late:
		assert.Equal(t, "Analyzing", v)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected replay of last value")
	}

	last, ok := event.Last()
	assert.True(t, ok)
	assert.Equal(t, "Analyzing", last)
}

func TestChannelEvent_NoReplayWhenDisabled(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("Result")

	ch := make(chan string, 1)
	defer event.Listen(ch)()

	select {
	case v := <-ch:
		t.Fatalf("unexpected replay %q", v)
	default:
	}
	_, ok := event.Last()
	assert.False(t, ok)
}

func TestChannelEvent_FullChannelCountsDrop(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 1)
	defer event.Listen(ch)()

	event.Notify(1)
	event.Notify(2)
	event.Notify(3)

	assert.Equal(t, uint64(2), event.Dropped())
	assert.Equal(t, 1, <-ch)
}

func TestChannelEvent_ConcurrentNotify(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 100)
	defer event.Listen(ch)()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				event.Notify(base*10 + j)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, len(ch))
	assert.Equal(t, uint64(0), event.Dropped())
}

func TestChannelEvent_ListenNilPanics(t *testing.T) {
	event := NewChannelEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
