package automation

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/solar"
)

func TestTriggerEnvelope_RoundTrip(t *testing.T) {
	next := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	triggers := []Trigger{
		&EventTrigger{Event: eventbus.PresenceChanged, Device: "Motion", Room: "Hall", Data: "true"},
		&SensorTrigger{Device: "Thermo", Room: "Kitchen", SubName: "temperature", Condition: GreaterOrEqual, Value: "25"},
		&ScheduleTrigger{Time: "07:30", Weekdays: []int{1, 2, 3, 4, 5}},
		&ScheduleTrigger{Solar: solar.Sunset, Offset: Duration(-15 * time.Minute), MonthDays: []int{1, 15}},
		&TimeTrigger{Interval: Duration(time.Hour), Start: "06:00", Next: next},
	}

	for _, trig := range triggers {
		t.Run(trig.Kind(), func(t *testing.T) {
			data, err := json.Marshal(TriggerEnvelope{Trigger: trig})
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var decoded TriggerEnvelope
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if decoded.Trigger.Kind() != trig.Kind() {
				t.Fatalf("Kind() = %s, want %s", decoded.Trigger.Kind(), trig.Kind())
			}
			again, err := json.Marshal(TriggerEnvelope{Trigger: decoded.Trigger})
			if err != nil {
				t.Fatalf("Marshal(decoded) error = %v", err)
			}
			if string(again) != string(data) {
				t.Errorf("round trip changed encoding:\n got %s\nwant %s", again, data)
			}
		})
	}
}

func TestExecutorEnvelope_RoundTrip(t *testing.T) {
	executors := []Executor{
		&CallExecutor{Target: "Living.AC (Climate)", Method: "SetMode", Args: "Mode.Cool"},
		&SetExecutor{Target: "Living.Lamp", Property: "Brightness", Value: "40"},
	}
	for _, exec := range executors {
		t.Run(exec.Kind(), func(t *testing.T) {
			data, err := json.Marshal(ExecutorEnvelope{Executor: exec})
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var decoded ExecutorEnvelope
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if !reflect.DeepEqual(decoded.Executor, exec) {
				t.Errorf("decoded = %#v, want %#v", decoded.Executor, exec)
			}
		})
	}
}

func TestEnvelope_Errors(t *testing.T) {
	var trig TriggerEnvelope
	if err := json.Unmarshal([]byte(`{"type":"lunar","spec":{}}`), &trig); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("unknown trigger error = %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type":"schedule","spec":{"weekdays":"monday"}}`), &trig); err == nil {
		t.Error("malformed trigger spec should fail")
	}

	var exec ExecutorEnvelope
	if err := json.Unmarshal([]byte(`{"type":"shell","spec":{}}`), &exec); !errors.Is(err, ErrUnknownExecutor) {
		t.Errorf("unknown executor error = %v", err)
	}
	if _, err := json.Marshal(TriggerEnvelope{}); err == nil {
		t.Error("nil trigger should not encode")
	}
}

func TestAction_JSON(t *testing.T) {
	a := &Action{
		Name:     "Cool Living Room",
		Slug:     "cool-living-room",
		Enabled:  true,
		Trigger:  &SensorTrigger{Device: "Thermo", SubName: "temperature", Condition: Greater, Value: "26"},
		Executor: &CallExecutor{Target: "Living.AC", Method: "TurnOn"},
		Condition: &PropertyCondition{
			Target: "Living (Room)", Property: "Occupied", Condition: Equal, Value: "true",
		},
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Action
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Name != a.Name || decoded.Slug != a.Slug || !decoded.Enabled {
		t.Errorf("identity = %q %q %v", decoded.Name, decoded.Slug, decoded.Enabled)
	}
	if _, ok := decoded.Trigger.(*SensorTrigger); !ok {
		t.Errorf("Trigger = %T, want *SensorTrigger", decoded.Trigger)
	}
	if !reflect.DeepEqual(decoded.Executor, a.Executor) {
		t.Errorf("Executor = %#v", decoded.Executor)
	}
	if !reflect.DeepEqual(decoded.Condition, a.Condition) {
		t.Errorf("Condition = %#v", decoded.Condition)
	}
}

func TestKinds(t *testing.T) {
	if got, want := TriggerKinds(), []string{"event", "schedule", "sensor", "time"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TriggerKinds() = %v, want %v", got, want)
	}
	if got, want := ExecutorKinds(), []string{"call", "set"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ExecutorKinds() = %v, want %v", got, want)
	}
}
