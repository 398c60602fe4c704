package device

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Device is a physical or virtual entity living in a Room.
//
// Lifecycle: a device is constructed (or decoded), added to a Room, then
// Setup runs once with the runtime environment. Update runs on every tick
// while the device is alive. Stop runs on removal or shutdown and must
// release whatever Setup acquired.
type Device interface {
	Target
	Common() *Base
	// Kind is the type tag used when encoding the device.
	Kind() string
	Setup(env *Env) error
	Update(ctx context.Context) error
	Stop() error
}

// Base holds the identity shared by every device. Variants embed it.
//
// Base implements eventbus.Source, so devices are passed to Bus.Fire as is.
type Base struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`

	// mu guards the variant's runtime state as well as lastOnline. Driver
	// callbacks and the tick loop both touch it.
	mu         sync.Mutex
	room       *Room
	lastOnline time.Time
}

// Common returns the embedded Base.
func (b *Base) Common() *Base { return b }

// EntityName returns the device name.
func (b *Base) EntityName() string { return b.Name }

// RoomName returns the name of the owning room, or "" when detached.
func (b *Base) RoomName() string {
	if b.room == nil {
		return ""
	}
	return b.room.Name
}

// Room returns the owning room.
func (b *Base) Room() *Room { return b.room }

// TargetName returns "Room.Device".
func (b *Base) TargetName() string {
	return b.RoomName() + "." + b.Name
}

// LastOnline returns when the device last reported data.
func (b *Base) LastOnline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOnline
}

// MarkOnline records that the device reported at t.
func (b *Base) MarkOnline(t time.Time) {
	b.mu.Lock()
	if t.After(b.lastOnline) {
		b.lastOnline = t
	}
	b.mu.Unlock()
}

// validName reports whether name can be used for a room or device.
// Dots separate room and device in target descriptors.
func validName(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.ContainsAny(name, ".()")
}
