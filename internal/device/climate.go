package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/debounce"
	"github.com/nerrad567/homecore/internal/eventbus"
)

// ClimateMode is the operating mode of a climate unit.
type ClimateMode int

// Climate modes.
const (
	ModeAuto ClimateMode = iota
	ModeCool
	ModeDry
	ModeFan
	ModeHeat
)

var climateModeNames = []string{"Auto", "Cool", "Dry", "Fan", "Heat"}

func (m ClimateMode) String() string { return enumName(climateModeNames, int(m)) }

// MarshalJSON encodes the mode by name.
func (m ClimateMode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON decodes a mode name, case-insensitively.
func (m *ClimateMode) UnmarshalJSON(data []byte) error {
	i, err := enumIndex(climateModeNames, "ClimateMode", data)
	*m = ClimateMode(i)
	return err
}

// FanSpeed is the fan setting of a climate unit.
type FanSpeed int

// Fan speeds.
const (
	FanAuto FanSpeed = iota
	FanLow
	FanMedium
	FanHigh
)

var fanSpeedNames = []string{"Auto", "Low", "Medium", "High"}

func (f FanSpeed) String() string { return enumName(fanSpeedNames, int(f)) }

// MarshalJSON encodes the fan speed by name.
func (f FanSpeed) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

// UnmarshalJSON decodes a fan speed name, case-insensitively.
func (f *FanSpeed) UnmarshalJSON(data []byte) error {
	i, err := enumIndex(fanSpeedNames, "FanSpeed", data)
	*f = FanSpeed(i)
	return err
}

func init() {
	modes := make(map[string]any, len(climateModeNames))
	for i, n := range climateModeNames {
		modes[n] = ClimateMode(i)
	}
	coerce.RegisterEnum("ClimateMode", modes)

	speeds := make(map[string]any, len(fanSpeedNames))
	for i, n := range fanSpeedNames {
		speeds[n] = FanSpeed(i)
	}
	coerce.RegisterEnum("FanSpeed", speeds)
}

// Default set-point limits.
const (
	DefaultMinTemperature = 16.0
	DefaultMaxTemperature = 30.0
)

// climateState is the JSON shape of both commands and state reports.
type climateState struct {
	Power       bool        `json:"power"`
	Mode        ClimateMode `json:"mode"`
	FanSpeed    FanSpeed    `json:"fan_speed"`
	Temperature float64     `json:"temperature"`
}

// Climate is an air conditioner or heat pump.
//
// Every setting change schedules one debounced JSON command carrying the
// complete desired state, so a burst of changes becomes one write.
type Climate struct {
	Base
	StateTopic     string  `json:"state_topic,omitempty"`
	CommandTopic   string  `json:"command_topic,omitempty"`
	MinTemperature float64 `json:"min_temperature,omitempty"`
	MaxTemperature float64 `json:"max_temperature,omitempty"`

	env      *Env
	state    climateState
	writer   *debounce.Debouncer
	caps     *Capabilities
	capsOnce sync.Once
}

var _ Switchable = (*Climate)(nil)

// Kind implements Device.
func (c *Climate) Kind() string { return "climate" }

// Capabilities implements Target.
func (c *Climate) Capabilities() *Capabilities {
	c.capsOnce.Do(func() {
		caps := NewCapabilities()
		switchMethods(caps, c)
		caps.AddProperty(Property{
			Name: "Power",
			Type: coerce.BoolT,
			Get:  func() any { return c.IsOn() },
			Set: func(ctx context.Context, v any) error {
				on, err := argBool(v)
				if err != nil {
					return err
				}
				return c.update(func(s *climateState) { s.Power = on })
			},
		})
		caps.AddProperty(Property{
			Name: "Mode",
			Type: coerce.EnumOf("ClimateMode"),
			Get:  func() any { return c.snapshot().Mode },
			Set: func(_ context.Context, v any) error {
				mode, ok := v.(ClimateMode)
				if !ok {
					return fmt.Errorf("%w: %v is not a ClimateMode", ErrInvalidArgument, v)
				}
				return c.update(func(s *climateState) { s.Mode = mode })
			},
		})
		caps.AddProperty(Property{
			Name: "FanSpeed",
			Type: coerce.EnumOf("FanSpeed"),
			Get:  func() any { return c.snapshot().FanSpeed },
			Set: func(_ context.Context, v any) error {
				speed, ok := v.(FanSpeed)
				if !ok {
					return fmt.Errorf("%w: %v is not a FanSpeed", ErrInvalidArgument, v)
				}
				return c.update(func(s *climateState) { s.FanSpeed = speed })
			},
		})
		setTemperature := func(v any) error {
			t, err := argFloat(v)
			if err != nil {
				return err
			}
			return c.update(func(s *climateState) { s.Temperature = c.clamp(t) })
		}
		caps.AddProperty(Property{
			Name: "Temperature",
			Type: coerce.FloatT,
			Get:  func() any { return c.snapshot().Temperature },
			Set:  func(_ context.Context, v any) error { return setTemperature(v) },
		})
		caps.AddMethod(Method{
			Name:   "SetTemperature",
			Params: []coerce.Type{coerce.FloatT},
			Call:   func(_ context.Context, args []any) error { return setTemperature(args[0]) },
		})
		c.caps = caps
	})
	return c.caps
}

// Setup implements Device.
func (c *Climate) Setup(env *Env) error {
	c.env = env.withDefaults()
	c.writer = debounce.New(c.flush, c.env.DebounceDelay)
	return c.env.subscribe(c.StateTopic, c.handleState)
}

// Update implements Device. Climate units are push-driven.
func (c *Climate) Update(context.Context) error { return nil }

// Stop implements Device. A pending command is sent before unsubscribing.
func (c *Climate) Stop() error {
	if c.writer != nil {
		c.writer.Flush()
	}
	c.env.unsubscribe(c.StateTopic)
	return nil
}

// IsOn implements Switchable.
func (c *Climate) IsOn() bool { return c.snapshot().Power }

// TurnOn implements Switchable.
func (c *Climate) TurnOn(context.Context) error {
	return c.update(func(s *climateState) { s.Power = true })
}

// TurnOff implements Switchable.
func (c *Climate) TurnOff(context.Context) error {
	return c.update(func(s *climateState) { s.Power = false })
}

// States returns the driver state carried by DriverStateChanged.
func (c *Climate) States() map[string]any {
	s := c.snapshot()
	return map[string]any{
		"Power":       s.Power,
		"Mode":        s.Mode,
		"FanSpeed":    s.FanSpeed,
		"Temperature": s.Temperature,
	}
}

func (c *Climate) snapshot() climateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// update applies fn to the desired state and schedules a command.
func (c *Climate) update(fn func(*climateState)) error {
	if c.writer == nil {
		return fmt.Errorf("%w: %s is not set up", ErrTransportUnavailable, c.TargetName())
	}
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()

	c.writer.Call()
	return nil
}

func (c *Climate) flush() {
	payload, err := json.Marshal(c.snapshot())
	if err != nil {
		c.env.Logger.Error("encoding climate command failed", "device", c.TargetName(), "error", err)
		return
	}

	ctx, cancel := c.env.background()
	defer cancel()
	if err := c.env.publish(ctx, c.CommandTopic, payload, false); err != nil {
		c.env.Logger.Warn("climate command failed", "device", c.TargetName(), "error", err)
	}
}

func (c *Climate) handleState(_ string, payload []byte) error {
	var reported climateState
	if err := json.Unmarshal(payload, &reported); err != nil {
		return fmt.Errorf("%s: decoding state: %w", c.TargetName(), err)
	}

	c.mu.Lock()
	changed := c.state != reported
	c.state = reported
	c.mu.Unlock()

	c.MarkOnline(c.env.Now())
	if changed {
		c.env.Bus.Fire(c, eventbus.DriverStateChanged, c.States())
	}
	return nil
}

func (c *Climate) clamp(t float64) float64 {
	low, high := c.MinTemperature, c.MaxTemperature
	if low == 0 {
		low = DefaultMinTemperature
	}
	if high == 0 {
		high = DefaultMaxTemperature
	}
	return max(low, min(high, t))
}

func enumName(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("%d", i)
}

func enumIndex(names []string, typeName string, data []byte) (int, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return 0, fmt.Errorf("%s must be a string: %w", typeName, err)
	}
	name = strings.TrimPrefix(name, typeName+".")
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidArgument, typeName, name)
}
