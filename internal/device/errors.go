package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownMethod) {
//	    // the rule names a method this device does not have
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist in its room.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a room already holds a device of that name.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrRoomNotFound is returned when a room does not exist.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrRoomExists is returned when adding a room whose name is taken.
	ErrRoomExists = errors.New("device: room already exists")

	// ErrInvalidName is returned when a room or device name is empty or contains a dot.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrUnknownKind is returned when decoding a device with an unregistered type tag.
	ErrUnknownKind = errors.New("device: unknown kind")

	// ErrUnknownMethod is returned when a target has no method of that name.
	ErrUnknownMethod = errors.New("device: unknown method")

	// ErrUnknownProperty is returned when a target has no property of that name.
	ErrUnknownProperty = errors.New("device: unknown property")

	// ErrReadOnlyProperty is returned when assigning a property without a setter.
	ErrReadOnlyProperty = errors.New("device: property is read-only")

	// ErrArgumentCount is returned when a method receives the wrong number of arguments.
	ErrArgumentCount = errors.New("device: wrong number of arguments")

	// ErrInvalidArgument is returned when a coerced argument has the wrong type.
	ErrInvalidArgument = errors.New("device: invalid argument")

	// ErrTransportUnavailable is returned when a device needs a transport and none is configured.
	ErrTransportUnavailable = errors.New("device: transport unavailable")
)
