package automation

import (
	"encoding/json"
	"fmt"
)

var triggerKinds = map[string]func() Trigger{
	"event":    func() Trigger { return &EventTrigger{} },
	"sensor":   func() Trigger { return &SensorTrigger{} },
	"schedule": func() Trigger { return &ScheduleTrigger{} },
	"time":     func() Trigger { return &TimeTrigger{} },
}

var executorKinds = map[string]func() Executor{
	"call": func() Executor { return &CallExecutor{} },
	"set":  func() Executor { return &SetExecutor{} },
}

type envelope struct {
	Type string          `json:"type"`
	Spec json.RawMessage `json:"spec"`
}

func encode(kind string, v any) ([]byte, error) {
	spec, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}
	return json.Marshal(envelope{Type: kind, Spec: spec})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// TriggerEnvelope is the tagged encoding of a trigger:
//
//	{"type": "schedule", "spec": {"time": "07:30", "weekdays": [1, 2, 3, 4, 5]}}
type TriggerEnvelope struct {
	Trigger Trigger
}

// MarshalJSON implements json.Marshaler.
func (e TriggerEnvelope) MarshalJSON() ([]byte, error) {
	if e.Trigger == nil {
		return nil, fmt.Errorf("%w: nil trigger", ErrUnknownTrigger)
	}
	return encode(e.Trigger.Kind(), e.Trigger)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *TriggerEnvelope) UnmarshalJSON(data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return err
	}
	factory, ok := triggerKinds[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, env.Type)
	}
	t := factory()
	if len(env.Spec) > 0 {
		if err := json.Unmarshal(env.Spec, t); err != nil {
			return fmt.Errorf("decoding %s trigger: %w", env.Type, err)
		}
	}
	e.Trigger = t
	return nil
}

// ExecutorEnvelope is the tagged encoding of an executor:
//
//	{"type": "call", "spec": {"target": "Kitchen.Lamp (Switch)", "method": "TurnOn"}}
type ExecutorEnvelope struct {
	Executor Executor
}

// MarshalJSON implements json.Marshaler.
func (e ExecutorEnvelope) MarshalJSON() ([]byte, error) {
	if e.Executor == nil {
		return nil, fmt.Errorf("%w: nil executor", ErrUnknownExecutor)
	}
	return encode(e.Executor.Kind(), e.Executor)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ExecutorEnvelope) UnmarshalJSON(data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return err
	}
	factory, ok := executorKinds[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExecutor, env.Type)
	}
	x := factory()
	if len(env.Spec) > 0 {
		if err := json.Unmarshal(env.Spec, x); err != nil {
			return fmt.Errorf("decoding %s executor: %w", env.Type, err)
		}
	}
	e.Executor = x
	return nil
}

// TriggerKinds lists the trigger type tags.
func TriggerKinds() []string { return sortedKeys(triggerKinds) }

// ExecutorKinds lists the executor type tags.
func ExecutorKinds() []string { return sortedKeys(executorKinds) }
