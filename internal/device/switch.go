package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/eventbus"
)

// Default on/off payloads.
const (
	DefaultPayloadOn  = "ON"
	DefaultPayloadOff = "OFF"
)

// Switch is an on/off device driven over MQTT.
//
// Commands go to CommandTopic as PayloadOn or PayloadOff. When StateTopic is
// set, the device's reported state is authoritative; otherwise commands
// update the state optimistically. With StateKey set, state messages are
// JSON objects and the state is read from that key.
type Switch struct {
	Base
	StateTopic   string `json:"state_topic,omitempty"`
	CommandTopic string `json:"command_topic,omitempty"`
	StateKey     string `json:"state_key,omitempty"`
	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`
	Retain       bool   `json:"retain,omitempty"`

	env      *Env
	on       bool
	caps     *Capabilities
	capsOnce sync.Once
	// changed replaces the default DriverStateChanged firing for variants
	// that embed Switch and report more state.
	changed func()
}

// Kind implements Device.
func (s *Switch) Kind() string { return "switch" }

// Capabilities implements Target.
func (s *Switch) Capabilities() *Capabilities {
	s.capsOnce.Do(func() {
		s.caps = NewCapabilities()
		switchMethods(s.caps, s)
		s.caps.AddProperty(isOnProperty(s))
	})
	return s.caps
}

// Setup implements Device.
func (s *Switch) Setup(env *Env) error {
	s.env = env.withDefaults()
	return s.env.subscribe(s.StateTopic, func(_ string, payload []byte) error {
		value, err := extractState(payload, s.StateKey)
		if err != nil {
			return err
		}
		on, ok := s.parseOn(value)
		if !ok {
			return fmt.Errorf("%s: unrecognised state %q", s.TargetName(), value)
		}
		s.applyOn(on)
		return nil
	})
}

// Update implements Device. Switches are push-driven.
func (s *Switch) Update(context.Context) error { return nil }

// Stop implements Device.
func (s *Switch) Stop() error {
	s.env.unsubscribe(s.StateTopic)
	return nil
}

// IsOn implements Switchable.
func (s *Switch) IsOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// TurnOn implements Switchable.
func (s *Switch) TurnOn(ctx context.Context) error { return s.command(ctx, true) }

// TurnOff implements Switchable.
func (s *Switch) TurnOff(ctx context.Context) error { return s.command(ctx, false) }

// States returns the driver state carried by DriverStateChanged.
func (s *Switch) States() map[string]any {
	return map[string]any{"IsOn": s.IsOn()}
}

func (s *Switch) command(ctx context.Context, on bool) error {
	if s.env == nil {
		return fmt.Errorf("%w: %s is not set up", ErrTransportUnavailable, s.TargetName())
	}
	payload := s.payloadFor(on)
	if err := s.env.publish(ctx, s.CommandTopic, []byte(payload), s.Retain); err != nil {
		return err
	}
	if s.StateTopic == "" {
		s.applyOn(on)
	}
	return nil
}

func (s *Switch) payloadFor(on bool) string {
	if on {
		return orDefault(s.PayloadOn, DefaultPayloadOn)
	}
	return orDefault(s.PayloadOff, DefaultPayloadOff)
}

// parseOn interprets a state value using the configured payloads first,
// then boolean coercion ("true", "on", ...).
func (s *Switch) parseOn(value string) (bool, bool) {
	switch {
	case strings.EqualFold(value, orDefault(s.PayloadOn, DefaultPayloadOn)):
		return true, true
	case strings.EqualFold(value, orDefault(s.PayloadOff, DefaultPayloadOff)):
		return false, true
	}
	if b, ok := coerce.Coerce(value, coerce.BoolT).(bool); ok {
		return b, true
	}
	return false, false
}

func (s *Switch) applyOn(on bool) {
	s.mu.Lock()
	changed := s.on != on
	s.on = on
	s.mu.Unlock()

	s.MarkOnline(s.env.Now())
	if !changed {
		return
	}
	if s.changed != nil {
		s.changed()
		return
	}
	s.env.Bus.Fire(s, eventbus.DriverStateChanged, s.States())
}

func isOnProperty(s Switchable) Property {
	return Property{
		Name: "IsOn",
		Type: coerce.BoolT,
		Get:  func() any { return s.IsOn() },
		Set: func(ctx context.Context, v any) error {
			on, err := argBool(v)
			if err != nil {
				return err
			}
			if on {
				return s.TurnOn(ctx)
			}
			return s.TurnOff(ctx)
		},
	}
}

// extractState returns the raw state text of a message. With a key, the
// payload must be a JSON object holding it.
func extractState(payload []byte, key string) (string, error) {
	if key == "" {
		return strings.TrimSpace(string(payload)), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", fmt.Errorf("decoding state payload: %w", err)
	}
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("state payload has no %q", key)
	}
	return fmt.Sprint(v), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
