package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/debounce"
	"github.com/nerrad567/homecore/internal/eventbus"
)

// Light is a Switch with brightness and colour.
//
// Brightness and colour writes are debounced: dragging a slider sends only
// the final level once the burst settles. State messages may be plain
// on/off payloads or JSON objects carrying BrightnessKey.
type Light struct {
	Switch
	BrightnessTopic string `json:"brightness_topic,omitempty"`
	BrightnessKey   string `json:"brightness_key,omitempty"`
	ColorTopic      string `json:"color_topic,omitempty"`

	brightness    int
	color         any
	pendingLevel  bool
	pendingColor  bool
	writer        *debounce.Debouncer
	lightCaps     *Capabilities
	lightCapsOnce sync.Once
}

var _ Dimmable = (*Light)(nil)

// Kind implements Device.
func (l *Light) Kind() string { return "light" }

// Capabilities implements Target.
func (l *Light) Capabilities() *Capabilities {
	l.lightCapsOnce.Do(func() {
		c := NewCapabilities()
		switchMethods(c, l)
		c.AddProperty(isOnProperty(l))
		c.AddMethod(Method{
			Name:   "SetBrightness",
			Params: []coerce.Type{coerce.IntT},
			Call: func(ctx context.Context, args []any) error {
				level, err := argFloat(args[0])
				if err != nil {
					return err
				}
				return l.SetBrightness(ctx, int(level))
			},
		})
		c.AddProperty(Property{
			Name: "Brightness",
			Type: coerce.IntT,
			Get:  func() any { return l.Brightness() },
			Set: func(ctx context.Context, v any) error {
				level, err := argFloat(v)
				if err != nil {
					return err
				}
				return l.SetBrightness(ctx, int(level))
			},
		})
		c.AddProperty(Property{
			Name: "Color",
			Type: coerce.PairOf(coerce.Int, coerce.Int),
			Get:  func() any { return l.Color() },
			Set: func(ctx context.Context, v any) error {
				return l.SetColor(ctx, v)
			},
		})
		l.lightCaps = c
	})
	return l.lightCaps
}

// Setup implements Device.
func (l *Light) Setup(env *Env) error {
	l.env = env.withDefaults()
	l.changed = l.fireState
	l.writer = debounce.New(l.flush, l.env.DebounceDelay)
	return l.env.subscribe(l.StateTopic, l.handleState)
}

// Stop implements Device. A pending write is sent before unsubscribing.
func (l *Light) Stop() error {
	if l.writer != nil {
		l.writer.Flush()
	}
	return l.Switch.Stop()
}

// Brightness implements Dimmable.
func (l *Light) Brightness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// Color returns the last colour set or reported.
func (l *Light) Color() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

// SetBrightness implements Dimmable. Level is clamped to 0-100 and the
// write happens after the debounce delay.
func (l *Light) SetBrightness(_ context.Context, level int) error {
	if l.writer == nil {
		return fmt.Errorf("%w: %s is not set up", ErrTransportUnavailable, l.TargetName())
	}
	level = max(0, min(100, level))

	l.mu.Lock()
	l.brightness = level
	l.pendingLevel = true
	l.mu.Unlock()

	l.writer.Call()
	return nil
}

// SetColor stores a colour, either a (hue, saturation) pair or free text
// such as "#ff8800", and schedules a debounced write.
func (l *Light) SetColor(_ context.Context, color any) error {
	if l.writer == nil {
		return fmt.Errorf("%w: %s is not set up", ErrTransportUnavailable, l.TargetName())
	}
	l.mu.Lock()
	l.color = color
	l.pendingColor = true
	l.mu.Unlock()

	l.writer.Call()
	return nil
}

// States returns the driver state carried by DriverStateChanged.
func (l *Light) States() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{"IsOn": l.on, "Brightness": l.brightness, "Color": l.color}
}

func (l *Light) fireState() {
	l.env.Bus.Fire(l, eventbus.DriverStateChanged, l.States())
}

// flush publishes pending brightness and colour. It runs on the debounce timer.
func (l *Light) flush() {
	l.mu.Lock()
	level, sendLevel := l.brightness, l.pendingLevel
	color, sendColor := l.color, l.pendingColor
	l.pendingLevel, l.pendingColor = false, false
	l.mu.Unlock()

	ctx, cancel := l.env.background()
	defer cancel()

	if sendLevel {
		if err := l.env.publish(ctx, l.BrightnessTopic, []byte(strconv.Itoa(level)), l.Retain); err != nil {
			l.env.Logger.Warn("brightness write failed", "device", l.TargetName(), "error", err)
		}
	}
	if sendColor {
		payload, err := colorPayload(color)
		if err == nil {
			err = l.env.publish(ctx, l.ColorTopic, payload, l.Retain)
		}
		if err != nil {
			l.env.Logger.Warn("colour write failed", "device", l.TargetName(), "error", err)
		}
	}
}

func (l *Light) handleState(_ string, payload []byte) error {
	value, err := extractState(payload, l.StateKey)
	if err != nil {
		return err
	}
	on, ok := l.parseOn(value)
	if !ok {
		return fmt.Errorf("%s: unrecognised state %q", l.TargetName(), value)
	}

	level, hasLevel := l.reportedBrightness(payload)

	l.mu.Lock()
	changed := l.on != on || (hasLevel && l.brightness != level)
	l.on = on
	if hasLevel {
		l.brightness = level
	}
	l.mu.Unlock()

	l.MarkOnline(l.env.Now())
	if changed {
		l.fireState()
	}
	return nil
}

func (l *Light) reportedBrightness(payload []byte) (int, bool) {
	if l.BrightnessKey == "" {
		return 0, false
	}
	var obj map[string]any
	if json.Unmarshal(payload, &obj) != nil {
		return 0, false
	}
	n, ok := coerce.Number(obj[l.BrightnessKey])
	if !ok {
		return 0, false
	}
	return int(n), true
}

func colorPayload(color any) ([]byte, error) {
	switch c := color.(type) {
	case coerce.PairValue:
		return json.Marshal(map[string]any{"hue": c.First, "saturation": c.Second})
	case string:
		return []byte(c), nil
	default:
		return nil, fmt.Errorf("%w: colour %v", ErrInvalidArgument, color)
	}
}
