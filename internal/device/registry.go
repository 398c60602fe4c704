package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// Registry is the in-memory graph of rooms and devices.
//
// Devices are set up when added and stopped when removed. Load populates a
// whole graph first and sets devices up afterwards, which is what the
// snapshot loader needs.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	order  []string
	env    *Env
	logger Logger
}

// NewRegistry creates an empty registry. env is passed to every device's Setup.
func NewRegistry(env *Env) *Registry {
	env = env.withDefaults()
	return &Registry{
		rooms:  make(map[string]*Room),
		env:    env,
		logger: env.Logger,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Env returns the environment devices are set up with.
func (r *Registry) Env() *Env {
	return r.env
}

// AddRoom creates a room.
func (r *Registry) AddRoom(name string) (*Room, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, name)
	}
	room := NewRoom(name)
	room.bus = r.env.Bus
	r.rooms[name] = room
	r.order = append(r.order, name)
	return room, nil
}

// Room returns a room by name.
func (r *Registry) Room(name string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	return room, nil
}

// Rooms returns all rooms in creation order.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(name string, _ int) *Room { return r.rooms[name] })
}

// AddDevice adds d to a room and sets it up. If Setup fails the device is
// removed again and the error returned.
func (r *Registry) AddDevice(roomName string, d Device) error {
	if err := r.attach(roomName, d); err != nil {
		return err
	}
	if err := d.Setup(r.env); err != nil {
		room, _ := r.Room(roomName)
		room.detach(d.Common().Name)
		return fmt.Errorf("setting up %s: %w", d.TargetName(), err)
	}
	r.logger.Debug("device added", "device", d.TargetName(), "kind", d.Kind())
	return nil
}

func (r *Registry) attach(roomName string, d Device) error {
	if !validName(d.Common().Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Common().Name)
	}
	room, err := r.Room(roomName)
	if err != nil {
		return err
	}
	return room.attach(d)
}

// RemoveDevice stops a device and removes it from its room.
func (r *Registry) RemoveDevice(roomName, name string) error {
	room, err := r.Room(roomName)
	if err != nil {
		return err
	}
	d, ok := room.detach(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrDeviceNotFound, roomName, name)
	}
	if err := d.Stop(); err != nil {
		return fmt.Errorf("stopping %s.%s: %w", roomName, name, err)
	}
	return nil
}

// Device returns a device by room and name.
func (r *Registry) Device(roomName, name string) (Device, error) {
	room, err := r.Room(roomName)
	if err != nil {
		return nil, err
	}
	d, ok := room.Device(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrDeviceNotFound, roomName, name)
	}
	return d, nil
}

// Resolve finds a rule target. When deviceName names a device in the room,
// the device is the target; otherwise the room itself is.
func (r *Registry) Resolve(roomName, deviceName string) (Target, error) {
	room, err := r.Room(roomName)
	if err != nil {
		return nil, err
	}
	if deviceName != "" {
		if d, ok := room.Device(deviceName); ok {
			return d, nil
		}
	}
	return room, nil
}

// Devices returns every device, rooms in creation order.
func (r *Registry) Devices() []Device {
	return lo.FlatMap(r.Rooms(), func(room *Room, _ int) []Device { return room.Devices() })
}

// Sensors returns every sensor.
func (r *Registry) Sensors() []*Sensor {
	return lo.FilterMap(r.Devices(), func(d Device, _ int) (*Sensor, bool) {
		s, ok := d.(*Sensor)
		return s, ok
	})
}

// Specs returns the serialisable form of the whole graph.
func (r *Registry) Specs() []RoomSpec {
	return lo.Map(r.Rooms(), func(room *Room, _ int) RoomSpec { return room.Spec() })
}

// Load adds rooms and devices from specs, then sets up every new device.
// Rooms that already exist are reused. Devices that fail Setup are removed
// and their errors returned together; the rest stay.
func (r *Registry) Load(specs []RoomSpec) error {
	var added []Device
	var errs []error
	for _, spec := range specs {
		if _, err := r.Room(spec.Name); err != nil {
			if _, err := r.AddRoom(spec.Name); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		for _, env := range spec.Devices {
			if err := r.attach(spec.Name, env.Device); err != nil {
				errs = append(errs, err)
				continue
			}
			added = append(added, env.Device)
		}
	}

	for _, d := range added {
		if err := d.Setup(r.env); err != nil {
			d.Common().Room().detach(d.Common().Name)
			errs = append(errs, fmt.Errorf("setting up %s: %w", d.TargetName(), err))
		}
	}
	r.logger.Info("device graph loaded", "rooms", len(specs), "devices", len(added))
	return errors.Join(errs...)
}

// Close stops every device. Errors are logged; Close always finishes.
func (r *Registry) Close() {
	for _, d := range r.Devices() {
		if err := d.Stop(); err != nil {
			r.logger.Warn("device stop failed", "device", d.TargetName(), "error", err)
		}
	}
}
