package coerce

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind is the semantic kind of a coercion target.
type Kind int

const (
	// Unspecified tries every parser in order.
	Unspecified Kind = iota
	Bool
	Int
	Float
	String
	Enum
	Time
	Pair
)

var kindNames = [...]string{"unspecified", "bool", "int", "float", "string", "enum", "time", "pair"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Type describes what a literal should become.
type Type struct {
	Kind Kind
	// Enum names the registered enum type when Kind is Enum.
	Enum string
	// Elems are the element kinds when Kind is Pair.
	Elems [2]Kind
}

// Common type descriptors.
var (
	Any     = Type{Kind: Unspecified}
	BoolT   = Type{Kind: Bool}
	IntT    = Type{Kind: Int}
	FloatT  = Type{Kind: Float}
	StringT = Type{Kind: String}
	TimeT   = Type{Kind: Time}
)

// EnumOf returns the descriptor for a registered enum type.
func EnumOf(name string) Type { return Type{Kind: Enum, Enum: name} }

// PairOf returns the descriptor for a 2-tuple.
func PairOf(first, second Kind) Type { return Type{Kind: Pair, Elems: [2]Kind{first, second}} }

func (t Type) String() string {
	switch t.Kind {
	case Enum:
		return t.Enum
	case Pair:
		return "(" + t.Elems[0].String() + ", " + t.Elems[1].String() + ")"
	default:
		return t.Kind.String()
	}
}

// PairValue is the result of coercing "(a, b)".
type PairValue struct {
	First  any `json:"first"`
	Second any `json:"second"`
}

// timeLayouts are tried in order for Time and Unspecified targets.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

// Service converts textual literals into typed values.
//
// Thread Safety: Coerce and RegisterEnum are safe for concurrent use.
type Service struct {
	mu       sync.RWMutex
	enums    map[string]map[string]any
	location *time.Location
}

// NewService creates a service with no registered enums that parses
// zone-less timestamps in loc (nil means time.Local).
func NewService(loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		enums:    make(map[string]map[string]any),
		location: loc,
	}
}

// Default is the process-wide service. Device packages register their enums here.
var Default = NewService(nil)

// Coerce converts text using the Default service.
func Coerce(text string, t Type) any { return Default.Coerce(text, t) }

// RegisterEnum registers an enum with the Default service.
func RegisterEnum(name string, members map[string]any) { Default.RegisterEnum(name, members) }

// RegisterEnum makes "Name.Member" literals resolve to members[Member].
// Member lookup is case-insensitive. Registering a name again replaces it.
func (s *Service) RegisterEnum(name string, members map[string]any) {
	folded := make(map[string]any, len(members))
	for k, v := range members {
		folded[strings.ToLower(k)] = v
	}
	s.mu.Lock()
	s.enums[name] = folded
	s.mu.Unlock()
}

// Enums lists the registered enum type names.
func (s *Service) Enums() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.enums))
	for name := range s.enums {
		names = append(names, name)
	}
	return names
}

// Coerce converts text into a value of type t. It never fails: when no
// parser applies, the original text is returned unchanged.
//
// Parsers run in this order, each only if t allows it:
//  1. boolean "true"/"false" (Bool also accepts "on"/"off")
//  2. integer
//  3. floating point
//  4. enum "TypeName.Member" (an Enum target also accepts a bare member)
//  5. date/time
//  6. pair "(a, b)", elements coerced recursively
func (s *Service) Coerce(text string, t Type) any {
	trimmed := strings.TrimSpace(text)
	k := t.Kind

	if k == Bool || k == Unspecified {
		if b, ok := parseBool(trimmed, k == Bool); ok {
			return b
		}
	}
	if k == Int || k == Unspecified {
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return int(i)
		}
	}
	if k == Float || k == Unspecified {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	}
	if k == Enum || k == Unspecified {
		if v, ok := s.lookupEnum(trimmed, t.Enum); ok {
			return v
		}
	}
	if k == Time || k == Unspecified {
		if ts, ok := s.parseTime(trimmed); ok {
			return ts
		}
	}
	if k == Pair {
		if p, ok := s.parsePair(trimmed, t.Elems); ok {
			return p
		}
	}
	return text
}

func parseBool(text string, aliases bool) (bool, bool) {
	switch strings.ToLower(text) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if aliases {
		switch strings.ToLower(text) {
		case "on":
			return true, true
		case "off":
			return false, true
		}
	}
	return false, false
}

func (s *Service) lookupEnum(text, want string) (any, bool) {
	typeName, member, qualified := strings.Cut(text, ".")
	if !qualified {
		if want == "" {
			return nil, false
		}
		typeName, member = want, text
	}
	if want != "" && typeName != want {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.enums[typeName]
	if !ok {
		return nil, false
	}
	v, ok := members[strings.ToLower(member)]
	return v, ok
}

func (s *Service) parseTime(text string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, text, s.location); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (s *Service) parsePair(text string, elems [2]Kind) (PairValue, bool) {
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")") {
		return PairValue{}, false
	}
	first, second, ok := strings.Cut(text[1:len(text)-1], ",")
	if !ok || strings.Contains(second, ",") {
		return PairValue{}, false
	}
	return PairValue{
		First:  s.Coerce(strings.TrimSpace(first), Type{Kind: elems[0]}),
		Second: s.Coerce(strings.TrimSpace(second), Type{Kind: elems[1]}),
	}, true
}

// Number converts a numeric-like value to float64. It accepts every Go
// integer and float type, bool (1 or 0) and numeric strings.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
