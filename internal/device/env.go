package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/timeseries"
)

// Default timings for device I/O.
const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultDebounceDelay  = 300 * time.Millisecond
)

// Transport carries device commands and state. The MQTT client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by devices.
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

// Env is everything a device needs from the runtime. It is passed to Setup
// instead of devices reaching for global state.
type Env struct {
	Bus        *eventbus.Bus
	Transport  Transport
	Logger     Logger
	Calibrator timeseries.Calibrator

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// Location defines calendar days for sensor archiving. Defaults to time.Local.
	Location *time.Location

	// CommandTimeout bounds every outbound publish.
	CommandTimeout time.Duration
	// DebounceDelay coalesces rapid writes to lights and climate units.
	DebounceDelay time.Duration
	// ResetDetection enables counter reset detection on every sensor.
	ResetDetection bool
	// Retention overrides the sensor retention period when non-zero.
	Retention time.Duration
	// QoS is used for device subscriptions and commands.
	QoS byte
}

// withDefaults returns a copy of env with unset fields filled in.
func (e *Env) withDefaults() *Env {
	out := Env{}
	if e != nil {
		out = *e
	}
	if out.Bus == nil {
		out.Bus = eventbus.New()
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Location == nil {
		out.Location = time.Local
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = DefaultCommandTimeout
	}
	if out.DebounceDelay <= 0 {
		out.DebounceDelay = DefaultDebounceDelay
	}
	return &out
}

// publish sends payload through the transport, giving up when ctx expires.
// A timed-out publish is not retried.
func (e *Env) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if e.Transport == nil {
		return ErrTransportUnavailable
	}
	if topic == "" {
		return fmt.Errorf("%w: no command topic", ErrTransportUnavailable)
	}

	done := make(chan error, 1)
	go func() { done <- e.Transport.Publish(topic, payload, e.QoS, retained) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	}
}

// background returns a context bounded by CommandTimeout for writes that
// originate from timers rather than callers.
func (e *Env) background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.CommandTimeout)
}

// subscribe binds a state topic. An empty topic is a no-op.
func (e *Env) subscribe(topic string, handler func(topic string, payload []byte) error) error {
	if topic == "" {
		return nil
	}
	if e.Transport == nil {
		return fmt.Errorf("%w: cannot subscribe to %s", ErrTransportUnavailable, topic)
	}
	if err := e.Transport.Subscribe(topic, e.QoS, handler); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

func (e *Env) unsubscribe(topic string) {
	if topic == "" || e == nil || e.Transport == nil {
		return
	}
	if err := e.Transport.Unsubscribe(topic); err != nil {
		e.Logger.Warn("unsubscribe failed", "topic", topic, "error", err)
	}
}
