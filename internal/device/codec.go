package device

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Factory creates an empty device of one kind for decoding.
type Factory func() Device

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Factory{
		"switch":  func() Device { return &Switch{} },
		"light":   func() Device { return &Light{} },
		"climate": func() Device { return &Climate{} },
		"sensor":  func() Device { return &Sensor{} },
	}
)

// RegisterKind makes a device kind decodable. Registering an existing kind
// replaces its factory.
func RegisterKind(kind string, factory Factory) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = factory
}

// Kinds lists the registered kinds, sorted.
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	return sortedKeys(kinds)
}

// Envelope is the tagged encoding of a device:
//
//	{"type": "switch", "spec": {"name": "Lamp", "command_topic": "..."}}
type Envelope struct {
	Device Device
}

type rawEnvelope struct {
	Type string          `json:"type"`
	Spec json.RawMessage `json:"spec"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrUnknownKind)
	}
	spec, err := json.Marshal(e.Device)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.Device.Common().Name, err)
	}
	return json.Marshal(rawEnvelope{Type: e.Device.Kind(), Spec: spec})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding device envelope: %w", err)
	}

	kindsMu.RLock()
	factory, ok := kinds[raw.Type]
	kindsMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, raw.Type)
	}

	d := factory()
	if len(raw.Spec) > 0 {
		if err := json.Unmarshal(raw.Spec, d); err != nil {
			return fmt.Errorf("decoding %s spec: %w", raw.Type, err)
		}
	}
	if !validName(d.Common().Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Common().Name)
	}
	e.Device = d
	return nil
}

// EncodeDevice returns the tagged JSON of a device.
func EncodeDevice(d Device) ([]byte, error) {
	return json.Marshal(Envelope{Device: d})
}

// DecodeDevice builds a device from tagged JSON. The device is not set up.
func DecodeDevice(data []byte) (Device, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e.Device, nil
}

// RoomSpec is the serialised form of a room and its devices.
type RoomSpec struct {
	Name    string     `json:"name"`
	Devices []Envelope `json:"devices"`
}

// Spec returns the serialisable form of a room.
func (r *Room) Spec() RoomSpec {
	spec := RoomSpec{Name: r.Name}
	for _, d := range r.Devices() {
		spec.Devices = append(spec.Devices, Envelope{Device: d})
	}
	return spec
}
