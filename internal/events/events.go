// Package events provides the in-process notification stream the rendering
// layer subscribes to for queue and transfer updates.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventFileQueued    EventType = "file_queued"    // File added to pending queue
	EventFileStarted   EventType = "file_started"   // Transfer began (bytes moving)
	EventFileProgress  EventType = "file_progress"  // Progress update
	EventFileCompleted EventType = "file_completed" // Successfully completed
	EventFileFailed    EventType = "file_failed"    // Failed with error
	EventFileRemoved   EventType = "file_removed"   // Removed by the user

	EventStrategyFallback EventType = "strategy_fallback" // Multipart demoted to chunked
	EventSessionFinalized EventType = "session_finalized" // Claim call succeeded
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// FileEvent carries per-file queue and progress updates.
type FileEvent struct {
	BaseEvent
	FileID        string  // PendingFile ID
	Name          string  // Display name (relative path for folder uploads)
	Size          int64   // File size in bytes
	BytesUploaded int64   // Bytes confirmed by the server so far
	Percentage    float64 // 0.0 to 100.0
	Speed         float64 // bytes/sec, EMA smoothed
	ETASeconds    float64 // Remaining seconds; negative when speed is unknown
	Error         error   // Error if failed
}

// FallbackEvent is published when the multipart strategy is demoted.
type FallbackEvent struct {
	BaseEvent
	FileID string // File whose upload triggered the demotion
	Reason error  // The strategy-level failure
}

// FinalizedEvent is published after a successful claim call.
type FinalizedEvent struct {
	BaseEvent
	Username   string
	FirstLogin bool
}

// EventBus manages event subscriptions and publishing.
// Publishing never blocks: events to full subscriber buffers are dropped
// and counted.
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with the specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events.
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish delivers an event to all matching subscribers without blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	deliver := func(ch chan Event) {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.subscribers[event.Type()] {
		deliver(ch)
	}
	for _, ch := range eb.all {
		deliver(ch)
	}
}

// DroppedEvents returns how many events were dropped due to full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}

// Close shuts down the bus and closes all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, chans := range eb.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
	eb.subscribers = make(map[EventType][]chan Event)
	eb.all = nil
}
