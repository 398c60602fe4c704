package automation

import (
	"fmt"
	"strings"

	"github.com/nerrad567/homecore/internal/device"
)

// ParseTarget splits a target descriptor of the form "Room[.Device] (Type)".
// The parenthesised type annotation is for rule editors only and is
// dropped. The room is everything before the first dot.
//
//	ParseTarget("Kitchen.Lamp (Switch)") // "Kitchen", "Lamp"
//	ParseTarget("Kitchen (Room)")        // "Kitchen", ""
func ParseTarget(descriptor string) (room, dev string) {
	s := stripAnnotation(descriptor)
	room, dev, _ = strings.Cut(s, ".")
	return strings.TrimSpace(room), strings.TrimSpace(dev)
}

// memberName normalises a method or property reference. Editors may write
// "Switch.TurnOn (ctx)"; the owner type prefix and annotation are dropped.
func memberName(ref string) string {
	s := stripAnnotation(ref)
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func stripAnnotation(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ")") {
		if i := strings.LastIndex(s, "("); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// resolveTarget resolves a descriptor. A device name that does not resolve
// falls back to the room.
func resolveTarget(env *Env, descriptor string) (device.Target, error) {
	if env.Resolver == nil {
		return nil, fmt.Errorf("%w: no resolver", ErrUnknownTarget)
	}
	room, dev := ParseTarget(descriptor)
	if room == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, descriptor)
	}
	target, err := env.Resolver.Resolve(room, dev)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownTarget, descriptor, err)
	}
	return target, nil
}
