package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "homecore"

// Topics builds the topics the core itself owns. Device state and command
// topics are configured per device and are not derived here.
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Join builds "<prefix>/<parts...>", skipping empty parts and trimming
// stray slashes so configured suffixes like "/alerts" behave.
func (t Topics) Join(parts ...string) string {
	var b strings.Builder
	b.WriteString(t.prefix())
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(part)
	}
	return b.String()
}

// SystemStatus is the retained online/offline topic (also the LWT topic).
func (t Topics) SystemStatus() string { return t.Join("system", "status") }

// Alerts is the topic the notification sink publishes to.
func (t Topics) Alerts(suffix string) string {
	if suffix == "" {
		suffix = "alerts"
	}
	return t.Join(suffix)
}

// All matches every topic under the prefix.
func (t Topics) All() string { return t.Join("#") }
