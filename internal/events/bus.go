// Package events provides an in-memory ordered event bus.
package events

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed = errors.New("event bus is closed")
)

// EventType represents the type of event.
type EventType string

const (
	// Controller → observers: session lifecycle
	EventRunStarted     EventType = "automation.started"
	EventStatusChanged  EventType = "automation.status"
	EventLoadingChanged EventType = "automation.loading"
	EventAgentMessage   EventType = "automation.message"
	EventHistoryAppend  EventType = "automation.history"
	EventRunFinished    EventType = "automation.finished"

	// Preferences
	EventPreferenceChanged EventType = "preference.changed"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceController  EventSource = "controller"
	SourcePreferences EventSource = "preferences"
	SourceGateway     EventSource = "gateway"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	id         int
	eventTypes []EventType
	handler    Subscriber
}

// Bus is an in-memory event bus.
//
// A single dispatch goroutine delivers events to subscribers synchronously, so
// every subscriber observes events in publish order. Published events are
// queued without bound: a slow subscriber delays delivery but never loses an
// event. Handlers must not subscribe or unsubscribe from within the handler.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	ringBuffer  *RingBuffer

	qmu     sync.Mutex
	queue   []Event
	closed  bool
	notify  chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewBus creates a new event bus. bufferSize bounds the history ring buffer.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &Bus{
		subscribers: make(map[int]*subscription),
		ringBuffer:  NewRingBuffer(bufferSize),
		queue:       make([]Event, 0, bufferSize),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	defer close(b.stopped)
	for {
		select {
		case <-b.notify:
			b.drain()
		case <-b.done:
			// Deliver what was queued before Close.
			b.drain()
			return
		}
	}
}

func (b *Bus) drain() {
	for {
		b.qmu.Lock()
		if len(b.queue) == 0 {
			b.qmu.Unlock()
			return
		}
		event := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		b.deliver(event)
	}
}

func (b *Bus) deliver(event Event) {
	b.ringBuffer.Add(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	// Registration order keeps delivery deterministic across subscribers.
	for _, id := range slices.Sorted(maps.Keys(b.subscribers)) {
		sub := b.subscribers[id]
		if b.matches(sub, event) {
			sub.handler(event)
		}
	}
}

func (b *Bus) matches(sub *subscription, event Event) bool {
	if len(sub.eventTypes) == 0 {
		return true
	}
	for _, t := range sub.eventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

// enqueue appends event to the delivery queue. It reports false once the bus
// is closed.
func (b *Bus) enqueue(event Event) bool {
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return false
	}
	b.queue = append(b.queue, event)
	b.qmu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Publish queues an event for delivery. It never blocks; events published
// after Close are discarded.
func (b *Bus) Publish(event Event) {
	b.enqueue(event)
}

// PublishAsync queues an event unless ctx is already done, reporting
// ErrBusClosed once the bus is closed.
func (b *Bus) PublishAsync(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.enqueue(event) {
		return ErrBusClosed
	}
	return nil
}

// Subscribe registers a handler for specific event types.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	b.subscribers[id] = &subscription{
		id:         id,
		eventTypes: eventTypes,
		handler:    handler,
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// SubscribeChan returns a channel that receives events.
// Events are dropped for this subscriber when its channel is full.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	unsubscribe := b.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(ch)
		})
	}
}

// History returns recent events from the ring buffer.
func (b *Bus) History(limit int) []Event {
	return b.ringBuffer.Get(limit)
}

// Close shuts down the event bus after delivering already queued events.
func (b *Bus) Close() {
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		<-b.stopped
		return
	}
	b.closed = true
	b.qmu.Unlock()

	close(b.done)
	<-b.stopped
}

// RingBuffer is a circular buffer for storing recent events.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	size   int
	pos    int
	count  int
}

// NewRingBuffer creates a new ring buffer.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.pos] = event
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *RingBuffer) Get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Event, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.events[(start+i)%r.size]
	}
	return result
}

func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.count = 0
}
