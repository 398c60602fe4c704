package eventbus

import (
	"errors"
	"sync"
)

// ErrUnknownEventType is returned when a name or number is outside the vocabulary.
var ErrUnknownEventType = errors.New("eventbus: unknown event type")

// Logger is the logging interface used by the bus.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Handler receives events. It runs on the goroutine that called Fire.
type Handler func(Event)

// Subscription identifies a registered handler for Unsubscribe.
type Subscription uint64

type entry struct {
	id      Subscription
	handler Handler
}

// Bus is a process-wide multicast publish/subscribe hub with synchronous dispatch.
//
// Fire calls every handler registered at the time of the call, in
// registration order, on the caller's goroutine. There is no queue and no
// replay. Handlers may Subscribe, Unsubscribe or Fire from inside a
// callback; changes take effect for the next Fire.
//
// Thread Safety: all methods are safe for concurrent use. Fire may be called
// from the tick loop, MQTT callback goroutines and worker pool goroutines at
// the same time.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
	nextID  Subscription
	logger  Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{logger: noopLogger{}}
}

// SetLogger sets the logger used to report recovered handler panics.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers a handler and returns its subscription token.
func (b *Bus) Subscribe(handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.entries = append(b.entries, entry{id: b.nextID, handler: handler})
	return b.nextID
}

// Unsubscribe removes a handler. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.id == sub {
			// Copy so snapshots held by in-flight Fire calls stay intact.
			next := make([]entry, 0, len(b.entries)-1)
			next = append(next, b.entries[:i]...)
			b.entries = append(next, b.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Fire delivers an event to every current subscriber.
// A panicking handler is recovered and logged; the remaining handlers still run.
func (b *Bus) Fire(source Source, eventType EventType, data any) {
	b.mu.RLock()
	snapshot := b.entries
	logger := b.logger
	b.mu.RUnlock()

	event := Event{Source: source, Type: eventType, Data: data}
	for _, e := range snapshot {
		b.deliver(logger, e, event)
	}
}

func (b *Bus) deliver(logger Logger, e entry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"event", event.Type.String(),
				"source", event.SourceName(),
				"subscription", uint64(e.id),
				"panic", r,
			)
		}
	}()
	e.handler(event)
}
