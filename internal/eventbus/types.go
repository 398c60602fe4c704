package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType is the closed vocabulary of events carried by the bus.
type EventType int

// Event types. The zero value is invalid so an unset field is detectable.
const (
	Start EventType = iota + 1
	Stop
	SensorDataAdded
	DriverStateChanged
	SecurityAlarmActivated
	PresenceChanged
	MediaPlayed
	MediaPaused
	MediaStopped
	MediaSeekBack
	MediaSeekBackFast
	MediaSeekForward
	MediaSeekForwardFast
	MediaVolumeUp
	MediaVolumeDown
	AssistantResponse
)

var eventTypeNames = map[EventType]string{
	Start:                  "Start",
	Stop:                   "Stop",
	SensorDataAdded:        "SensorDataAdded",
	DriverStateChanged:     "DriverStateChanged",
	SecurityAlarmActivated: "SecurityAlarmActivated",
	PresenceChanged:        "PresenceChanged",
	MediaPlayed:            "MediaPlayed",
	MediaPaused:            "MediaPaused",
	MediaStopped:           "MediaStopped",
	MediaSeekBack:          "MediaSeekBack",
	MediaSeekBackFast:      "MediaSeekBackFast",
	MediaSeekForward:       "MediaSeekForward",
	MediaSeekForwardFast:   "MediaSeekForwardFast",
	MediaVolumeUp:          "MediaVolumeUp",
	MediaVolumeDown:        "MediaVolumeDown",
	AssistantResponse:      "AssistantResponse",
}

// EventTypes returns every event type in declaration order.
// Rule editors use it to offer the vocabulary.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(eventTypeNames))
	for t := Start; t <= AssistantResponse; t++ {
		types = append(types, t)
	}
	return types
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Valid reports whether t is a member of the vocabulary.
func (t EventType) Valid() bool {
	_, ok := eventTypeNames[t]
	return ok
}

// ParseEventType looks up an event type by name, case-insensitively.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, name)
}

// MarshalJSON encodes the event type by name.
func (t EventType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an event type from its name.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("event type must be a string: %w", err)
	}
	parsed, err := ParseEventType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Source identifies the entity that fired an event.
// Devices implement it; system events use a nil Source.
type Source interface {
	EntityName() string
	RoomName() string
}

// Event is what subscribers receive.
//
// Data depends on Type:
//   - SensorDataAdded: map[string]float64 of the values written by one ingest call
//   - DriverStateChanged: map[string]any of the driver's current states
//   - others: whatever the firing collaborator supplies, possibly nil
type Event struct {
	Source Source
	Type   EventType
	Data   any
}

// SourceName returns the source entity name, or "" for system events.
func (e Event) SourceName() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.EntityName()
}

// SourceRoom returns the source room name, or "" for system events.
func (e Event) SourceRoom() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.RoomName()
}
