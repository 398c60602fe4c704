package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/eventbus"
)

// Room groups devices and is itself a rule target. Calling TurnOff on a
// room turns off every Switchable device in it.
type Room struct {
	Name string

	mu       sync.RWMutex
	devices  []Device
	occupied bool
	bus      *eventbus.Bus
	caps     *Capabilities
}

// NewRoom creates an empty room.
func NewRoom(name string) *Room {
	r := &Room{Name: name}
	r.caps = NewCapabilities()
	r.caps.AddMethod(Method{Name: "TurnOn", Call: func(ctx context.Context, _ []any) error {
		return r.eachSwitchable(func(s Switchable) error { return s.TurnOn(ctx) })
	}})
	r.caps.AddMethod(Method{Name: "TurnOff", Call: func(ctx context.Context, _ []any) error {
		return r.eachSwitchable(func(s Switchable) error { return s.TurnOff(ctx) })
	}})
	r.caps.AddProperty(Property{
		Name: "Occupied",
		Type: coerce.BoolT,
		Get:  func() any { return r.Occupied() },
		Set: func(_ context.Context, v any) error {
			b, err := argBool(v)
			if err != nil {
				return err
			}
			r.SetOccupied(b)
			return nil
		},
	})
	return r
}

// EntityName implements eventbus.Source.
func (r *Room) EntityName() string { return r.Name }

// RoomName implements eventbus.Source.
func (r *Room) RoomName() string { return r.Name }

// TargetName implements Target.
func (r *Room) TargetName() string { return r.Name }

// Capabilities implements Target.
func (r *Room) Capabilities() *Capabilities { return r.caps }

// Devices returns the room's devices in insertion order.
func (r *Room) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Device finds a device by name.
func (r *Room) Device(name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Common().Name == name {
			return d, true
		}
	}
	return nil, false
}

// Occupied reports whether presence was last seen in the room.
func (r *Room) Occupied() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.occupied
}

// SetOccupied records presence and fires PresenceChanged when it changes.
func (r *Room) SetOccupied(occupied bool) {
	r.mu.Lock()
	changed := r.occupied != occupied
	r.occupied = occupied
	bus := r.bus
	r.mu.Unlock()

	if changed && bus != nil {
		bus.Fire(r, eventbus.PresenceChanged, occupied)
	}
}

func (r *Room) attach(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.devices {
		if existing.Common().Name == d.Common().Name {
			return fmt.Errorf("%w: %s.%s", ErrDeviceExists, r.Name, d.Common().Name)
		}
	}
	d.Common().room = r
	r.devices = append(r.devices, d)
	return nil
}

func (r *Room) detach(name string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.devices {
		if d.Common().Name == name {
			r.devices = append(r.devices[:i:i], r.devices[i+1:]...)
			return d, true
		}
	}
	return nil, false
}

// eachSwitchable applies fn to every Switchable device, continuing past failures.
func (r *Room) eachSwitchable(fn func(Switchable) error) error {
	var errs []error
	for _, d := range r.Devices() {
		if s, ok := d.(Switchable); ok {
			if err := fn(s); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Common().Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
