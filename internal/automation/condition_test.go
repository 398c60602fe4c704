package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

func TestCompare(t *testing.T) {
	morning := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	evening := morning.Add(12 * time.Hour)

	tests := []struct {
		name string
		a, b any
		c    Condition
		want bool
	}{
		{"equal ints", 5, 5, Equal, true},
		{"less ints", 4, 5, Less, true},
		{"greater or equal", 6, 5, GreaterOrEqual, true},
		{"greater or equal boundary", 5, 5, GreaterOrEqual, true},
		{"not less", 5, 4, Less, false},
		{"int vs float", 3, 3.0, Equal, true},
		{"float32 vs int64", float32(2.5), int64(2), Greater, true},
		{"not equal numbers", 1, 2, NotEqual, true},
		{"less or equal", 2.5, 2.5, LessOrEqual, true},
		{"times", morning, evening, Less, true},
		{"times equal", morning, morning.In(time.FixedZone("X", 3600)), Equal, true},
		{"strings lexical", "apple", "banana", Less, true},
		{"strings equal", "on", "on", Equal, true},
		{"bools equal", true, true, Equal, true},
		{"bools unordered", true, false, Greater, false},
		{"mixed kinds never equal", "5", 5, Equal, false},
		{"mixed kinds not equal", "5", 5, NotEqual, true},
		{"mixed kinds unordered", "5", 5, Less, false},
		{"uncomparable maps", map[string]int{}, map[string]int{}, Equal, false},
		{"nil equals nil", nil, nil, Equal, true},
		{"invalid condition", 1, 1, Condition(99), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b, tt.c); got != tt.want {
				t.Errorf("Compare(%v, %v, %v) = %v, want %v", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"Equal", Equal},
		{"greaterorequal", GreaterOrEqual},
		{"≥", GreaterOrEqual},
		{">=", GreaterOrEqual},
		{"≠", NotEqual},
		{"!=", NotEqual},
		{"==", Equal},
		{" < ", Less},
		{"≤", LessOrEqual},
		{">", Greater},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCondition(tt.in)
			if err != nil {
				t.Fatalf("ParseCondition(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCondition(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseCondition("approximately"); !errors.Is(err, ErrUnknownCondition) {
		t.Errorf("ParseCondition(approximately) error = %v, want ErrUnknownCondition", err)
	}
}

func TestCondition_Vocabulary(t *testing.T) {
	for _, c := range Conditions() {
		if !c.Valid() {
			t.Errorf("%v is not valid", c)
		}
		if c.Symbol() == "" {
			t.Errorf("%v has no symbol", c)
		}
		parsed, err := ParseCondition(c.Symbol())
		if err != nil || parsed != c {
			t.Errorf("ParseCondition(%q) = %v, %v", c.Symbol(), parsed, err)
		}
	}
	if Condition(0).Valid() {
		t.Error("zero condition should be invalid")
	}
}

func TestCondition_JSON(t *testing.T) {
	data, err := json.Marshal(LessOrEqual)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"LessOrEqual"` {
		t.Errorf("Marshal() = %s", data)
	}

	var c Condition
	if err := json.Unmarshal([]byte(`"≥"`), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c != GreaterOrEqual {
		t.Errorf("Unmarshal() = %v, want GreaterOrEqual", c)
	}

	if _, err := json.Marshal(Condition(0)); err == nil {
		t.Error("Marshal(0) should fail")
	}
	if err := json.Unmarshal([]byte(`2`), &c); err == nil {
		t.Error("Unmarshal(2) should fail")
	}
}

func TestPropertyCondition_Check(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	thermostat := newFakeTarget("Kitchen.Thermostat")
	env := testEnv(fakeResolver{"Kitchen.Thermostat": thermostat}, clock)
	ctx := context.Background()

	tests := []struct {
		name string
		cond PropertyCondition
		want bool
	}{
		{"above", PropertyCondition{Target: "Kitchen.Thermostat", Property: "Temperature", Condition: Greater, Value: "19.5"}, true},
		{"below", PropertyCondition{Target: "Kitchen.Thermostat", Property: "Temperature", Condition: Less, Value: "19.5"}, false},
		{"annotated", PropertyCondition{Target: "Kitchen.Thermostat (Climate)", Property: "Climate.Temperature", Condition: Equal, Value: "20"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Check(ctx, env)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("unknown property", func(t *testing.T) {
		cond := PropertyCondition{Target: "Kitchen.Thermostat", Property: "Humidity", Condition: Equal, Value: "1"}
		if _, err := cond.Check(ctx, env); !errors.Is(err, device.ErrUnknownProperty) {
			t.Errorf("Check() error = %v, want ErrUnknownProperty", err)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		cond := PropertyCondition{Target: "Garage.Door", Property: "Open", Condition: Equal, Value: "true"}
		if _, err := cond.Check(ctx, env); !errors.Is(err, ErrUnknownTarget) {
			t.Errorf("Check() error = %v, want ErrUnknownTarget", err)
		}
	})
}
