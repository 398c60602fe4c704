package device

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/homecore/internal/coerce"
)

// Target is anything a Call or Set executor can act on: a device or a room.
type Target interface {
	// TargetName is "Room" for rooms and "Room.Device" for devices.
	TargetName() string
	Capabilities() *Capabilities
}

// Method is a named operation callable by rules.
// Args have already been coerced to Params, positionally.
type Method struct {
	Name   string
	Params []coerce.Type
	Call   func(ctx context.Context, args []any) error
}

// Property is a named value readable and, when Set is non-nil, writable by rules.
type Property struct {
	Name string
	Type coerce.Type
	Get  func() any
	Set  func(ctx context.Context, value any) error
}

// Capabilities is the static dispatch table of one target. Each device
// builds its table once during construction; rules look up members by name
// instead of reflecting over the device.
type Capabilities struct {
	methods    map[string]Method
	properties map[string]Property
}

// NewCapabilities creates an empty table.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		methods:    make(map[string]Method),
		properties: make(map[string]Property),
	}
}

// AddMethod registers a method, replacing any of the same name.
func (c *Capabilities) AddMethod(m Method) *Capabilities {
	c.methods[m.Name] = m
	return c
}

// AddProperty registers a property, replacing any of the same name.
func (c *Capabilities) AddProperty(p Property) *Capabilities {
	c.properties[p.Name] = p
	return c
}

// Method looks up a method by name.
func (c *Capabilities) Method(name string) (Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Property looks up a property by name.
func (c *Capabilities) Property(name string) (Property, bool) {
	p, ok := c.properties[name]
	return p, ok
}

// MethodNames lists method names, sorted.
func (c *Capabilities) MethodNames() []string {
	return sortedKeys(c.methods)
}

// PropertyNames lists property names, sorted.
func (c *Capabilities) PropertyNames() []string {
	return sortedKeys(c.properties)
}

// Invoke calls a method after checking its arity.
func (c *Capabilities) Invoke(ctx context.Context, name string, args []any) error {
	m, ok := c.methods[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	if len(args) != len(m.Params) {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArgumentCount, name, len(m.Params), len(args))
	}
	return m.Call(ctx, args)
}

// Assign writes a property.
func (c *Capabilities) Assign(ctx context.Context, name string, value any) error {
	p, ok := c.properties[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	if p.Set == nil {
		return fmt.Errorf("%w: %s", ErrReadOnlyProperty, name)
	}
	return p.Set(ctx, value)
}

// Read returns a property's current value.
func (c *Capabilities) Read(name string) (any, error) {
	p, ok := c.properties[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return p.Get(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Switchable is implemented by devices that can be turned on and off.
type Switchable interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	IsOn() bool
}

// Dimmable is implemented by devices with a 0-100 brightness level.
type Dimmable interface {
	SetBrightness(ctx context.Context, level int) error
	Brightness() int
}

// switchMethods adds TurnOn, TurnOff and Toggle for s.
func switchMethods(c *Capabilities, s Switchable) {
	c.AddMethod(Method{Name: "TurnOn", Call: func(ctx context.Context, _ []any) error { return s.TurnOn(ctx) }})
	c.AddMethod(Method{Name: "TurnOff", Call: func(ctx context.Context, _ []any) error { return s.TurnOff(ctx) }})
	c.AddMethod(Method{Name: "Toggle", Call: func(ctx context.Context, _ []any) error {
		if s.IsOn() {
			return s.TurnOff(ctx)
		}
		return s.TurnOn(ctx)
	}})
}

// argBool converts a coerced argument to bool.
func argBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	default:
		if n, ok := coerce.Number(v); ok {
			return n != 0, nil
		}
		return false, fmt.Errorf("%w: %v is not a boolean", ErrInvalidArgument, v)
	}
}

// argFloat converts a coerced argument to float64.
func argFloat(v any) (float64, error) {
	n, ok := coerce.Number(v)
	if !ok {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidArgument, v)
	}
	return n, nil
}
