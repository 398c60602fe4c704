// Package telemetry mirrors sensor readings from the event bus into an
// external time-series database.
package telemetry

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/nerrad567/homecore/internal/eventbus"
)

// Writer receives one point per sensor sub-value. The InfluxDB client
// implements it.
type Writer interface {
	WriteSensorReading(sensor, room, subName string, value float64, at time.Time)
}

// flusher is implemented by writers that buffer.
type flusher interface {
	Flush()
}

// Logger defines the logging interface used by the forwarder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Forwarder subscribes to SensorDataAdded and writes every value of the
// payload. It implements orchestrator.System so the loop owns its
// lifecycle; Update is a no-op.
//
// Handlers run on the firing goroutine. Writers are expected to buffer, as
// the InfluxDB client does, so forwarding never blocks ingestion.
type Forwarder struct {
	bus    *eventbus.Bus
	writer Writer
	now    func() time.Time
	logger Logger

	mu         sync.Mutex
	sub        eventbus.Subscription
	subscribed bool

	forwarded atomic.Uint64
}

// NewForwarder creates a forwarder. Call Setup to start forwarding.
func NewForwarder(bus *eventbus.Bus, writer Writer) *Forwarder {
	return &Forwarder{
		bus:    bus,
		writer: writer,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (f *Forwarder) SetLogger(logger Logger) {
	f.logger = logger
}

// SetClock overrides the timestamp source for written points.
func (f *Forwarder) SetClock(now func() time.Time) {
	f.now = now
}

// Name implements orchestrator.System.
func (f *Forwarder) Name() string { return "telemetry" }

// Setup implements orchestrator.System.
func (f *Forwarder) Setup(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subscribed {
		f.sub = f.bus.Subscribe(f.handle)
		f.subscribed = true
	}
	return nil
}

// Update implements orchestrator.System.
func (f *Forwarder) Update(context.Context) error { return nil }

// Stop implements orchestrator.System. Buffered points are flushed.
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	if f.subscribed {
		f.bus.Unsubscribe(f.sub)
		f.subscribed = false
	}
	f.mu.Unlock()

	if fl, ok := f.writer.(flusher); ok {
		fl.Flush()
	}
	f.logger.Info("telemetry stopped", "forwarded", f.forwarded.Load())
	return nil
}

// Forwarded returns the number of points written so far.
func (f *Forwarder) Forwarded() uint64 {
	return f.forwarded.Load()
}

func (f *Forwarder) handle(e eventbus.Event) {
	if e.Type != eventbus.SensorDataAdded {
		return
	}
	values, ok := e.Data.(map[string]float64)
	if !ok {
		f.logger.Warn("unexpected sensor payload", "sensor", e.SourceName(), "type", e.Data)
		return
	}

	at := f.now()
	keys := lo.Keys(values)
	slices.Sort(keys)
	for _, subName := range keys {
		f.writer.WriteSensorReading(e.SourceName(), e.SourceRoom(), subName, values[subName], at)
	}
	f.forwarded.Add(uint64(len(keys)))
	f.logger.Debug("sensor readings forwarded", "sensor", e.SourceName(), "count", len(keys))
}
