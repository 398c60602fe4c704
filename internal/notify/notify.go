// Package notify delivers alerts for persistent conditions, at most once per
// validity window per key.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDeliveryTimeout bounds one sink delivery.
const DefaultDeliveryTimeout = 5 * time.Second

// ErrNoSinks is returned by Deliver when no sink accepted the alert.
var ErrNoSinks = errors.New("notify: no sink accepted the alert")

// Alert is one delivered notification.
type Alert struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	ValidUntil time.Time `json:"valid_until"`
}

// Sink delivers alerts somewhere a person will see them.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert Alert) error
}

// Logger is the logging interface used by the notifier.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Notifier suppresses repeats of the same alert key until its validity
// expires.
//
// Thread Safety: NotifyOncePerValidity is safe for concurrent use.
type Notifier struct {
	mu      sync.Mutex
	expires map[string]time.Time
	sinks   []Sink
	logger  Logger
	clock   func() time.Time
	timeout time.Duration
}

// New creates a notifier delivering to sinks.
func New(sinks ...Sink) *Notifier {
	return &Notifier{
		expires: make(map[string]time.Time),
		sinks:   sinks,
		logger:  noopLogger{},
		clock:   time.Now,
		timeout: DefaultDeliveryTimeout,
	}
}

// SetLogger sets the logger.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// SetClock replaces the time source.
func (n *Notifier) SetClock(clock func() time.Time) {
	n.clock = clock
}

// NotifyOncePerValidity delivers message unless an alert for key was already
// delivered and is still valid. It reports whether the message was delivered.
// A key whose delivery failed on every sink is not recorded, so the next call
// tries again.
func (n *Notifier) NotifyOncePerValidity(key, message string, validity time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	if until, ok := n.expires[key]; ok && now.Before(until) {
		return false
	}

	alert := Alert{
		ID:         uuid.NewString(),
		Key:        key,
		Message:    message,
		CreatedAt:  now,
		ValidUntil: now.Add(validity),
	}
	if err := n.deliver(alert); err != nil {
		n.logger.Warn("alert not delivered", "key", key, "error", err)
		return false
	}

	n.expires[key] = alert.ValidUntil
	n.prune(now)
	return true
}

// Active returns the keys whose validity has not expired.
func (n *Notifier) Active() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	var keys []string
	for key, until := range n.expires {
		if now.Before(until) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (n *Notifier) deliver(alert Alert) error {
	delivered := false
	var errs []error
	for _, sink := range n.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := sink.Deliver(ctx, alert)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		delivered = true
	}
	for _, err := range errs {
		n.logger.Warn("alert sink failed", "key", alert.Key, "error", err)
	}
	if !delivered {
		return errors.Join(append([]error{ErrNoSinks}, errs...)...)
	}
	return nil
}

// prune drops expired keys. Callers hold mu.
func (n *Notifier) prune(now time.Time) {
	for key, until := range n.expires {
		if !now.Before(until) {
			delete(n.expires, key)
		}
	}
}

// LogSink writes alerts to the log.
type LogSink struct {
	Logger Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, alert Alert) error {
	s.Logger.Warn("alert", "id", alert.ID, "key", alert.Key, "message", alert.Message)
	return nil
}

// Publisher is the subset of the MQTT client used by MQTTSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes alerts as JSON for dashboards and phone bridges.
type MQTTSink struct {
	Publisher Publisher
	Topic     string
	QoS       byte
}

// Name implements Sink.
func (MQTTSink) Name() string { return "mqtt" }

// Deliver implements Sink.
func (s MQTTSink) Deliver(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshalling alert: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Publisher.Publish(s.Topic, payload, s.QoS, false) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
