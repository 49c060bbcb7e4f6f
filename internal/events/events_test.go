package events

import (
	"testing"
	"time"
)

func fileEvent(eventType EventType, id string) *FileEvent {
	return &FileEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		FileID:    id,
	}
}

// TestSubscribeByType verifies typed subscriptions only see their type.
func TestSubscribeByType(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()

	progressCh := bus.Subscribe(EventFileProgress)
	bus.Publish(fileEvent(EventFileQueued, "f1"))
	bus.Publish(fileEvent(EventFileProgress, "f1"))

	select {
	case ev := <-progressCh:
		if ev.Type() != EventFileProgress {
			t.Errorf("Expected progress event, got %s", ev.Type())
		}
	default:
		t.Fatal("Typed subscriber missed its event")
	}

	select {
	case ev := <-progressCh:
		t.Errorf("Typed subscriber received foreign event %s", ev.Type())
	default:
	}
}

// TestSubscribeAll verifies the firehose sees everything in order.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.Publish(fileEvent(EventFileQueued, "f1"))
	bus.Publish(fileEvent(EventFileStarted, "f1"))

	if ev := <-ch; ev.Type() != EventFileQueued {
		t.Errorf("Expected queued first, got %s", ev.Type())
	}
	if ev := <-ch; ev.Type() != EventFileStarted {
		t.Errorf("Expected started second, got %s", ev.Type())
	}
}

// TestPublishNeverBlocks verifies a full subscriber buffer drops events and
// counts them instead of stalling the publisher.
func TestPublishNeverBlocks(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	bus.SubscribeAll() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(fileEvent(EventFileProgress, "f1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if dropped := bus.DroppedEvents(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}
}

// TestCloseEndsSubscriptions verifies closed buses close their channels and
// ignore further publishes.
func TestCloseEndsSubscriptions(t *testing.T) {
	bus := NewEventBus(8)
	ch := bus.SubscribeAll()

	bus.Close()
	bus.Publish(fileEvent(EventFileQueued, "f1")) // must not panic

	if _, ok := <-ch; ok {
		t.Error("Subscriber channel not closed")
	}

	if ch2 := bus.Subscribe(EventFileQueued); ch2 == nil {
		t.Error("Subscribe after close returned nil channel")
	} else if _, ok := <-ch2; ok {
		t.Error("Post-close subscription not immediately closed")
	}
}
