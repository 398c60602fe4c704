package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/device"
)

// Condition is a comparison operator used by sensor triggers and property
// conditions.
type Condition int

// Conditions. The zero value is invalid.
const (
	Equal Condition = iota + 1
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
)

var conditionNames = map[Condition]string{
	Equal:          "Equal",
	NotEqual:       "NotEqual",
	Less:           "Less",
	LessOrEqual:    "LessOrEqual",
	Greater:        "Greater",
	GreaterOrEqual: "GreaterOrEqual",
}

var conditionSymbols = map[Condition]string{
	Equal:          "=",
	NotEqual:       "≠",
	Less:           "<",
	LessOrEqual:    "≤",
	Greater:        ">",
	GreaterOrEqual: "≥",
}

// asciiSymbols are accepted when parsing.
var asciiSymbols = map[string]Condition{
	"==": Equal,
	"!=": NotEqual,
	"<=": LessOrEqual,
	">=": GreaterOrEqual,
}

// Conditions returns the vocabulary in declaration order.
func Conditions() []Condition {
	return []Condition{Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual}
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Condition(%d)", int(c))
}

// Symbol returns the mathematical symbol, e.g. "≥".
func (c Condition) Symbol() string { return conditionSymbols[c] }

// Valid reports whether c is in the vocabulary.
func (c Condition) Valid() bool {
	_, ok := conditionNames[c]
	return ok
}

// ParseCondition accepts a name ("GreaterOrEqual", case-insensitive), a
// symbol ("≥") or its ASCII spelling (">=").
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if c, ok := asciiSymbols[s]; ok {
		return c, nil
	}
	for _, c := range Conditions() {
		if strings.EqualFold(conditionNames[c], s) || conditionSymbols[c] == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCondition, s)
}

// MarshalJSON encodes the condition by name.
func (c Condition) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCondition, int(c))
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a condition name or symbol.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("condition must be a string: %w", err)
	}
	parsed, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Compare evaluates "a <c> b".
//
// Numbers of any Go type compare numerically, times chronologically and
// strings lexically. Other values only support Equal and NotEqual. Values
// of incomparable kinds are never equal and never ordered.
func Compare(a, b any, c Condition) bool {
	cmp, ok := order(a, b)
	if !ok {
		equal := safeEqual(a, b)
		switch c {
		case Equal:
			return equal
		case NotEqual:
			return !equal
		default:
			return false
		}
	}

	switch c {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case Less:
		return cmp < 0
	case LessOrEqual:
		return cmp <= 0
	case Greater:
		return cmp > 0
	case GreaterOrEqual:
		return cmp >= 0
	default:
		return false
	}
}

// order returns the three-way comparison of a and b, or false when the
// values are not mutually ordered.
func order(a, b any) (int, bool) {
	if isNumeric(a) && isNumeric(b) {
		x, _ := coerce.Number(a)
		y, _ := coerce.Number(b)
		return threeWay(x, y), true
	}
	if ta, isTime := a.(time.Time); isTime {
		if tb, isTime := b.(time.Time); isTime {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if sa, isString := a.(string); isString {
		if sb, isString := b.(string); isString {
			return strings.Compare(sa, sb), true
		}
	}
	return 0, false
}

func threeWay(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// isNumeric reports whether v is a Go number. Strings and bools are not,
// even though coerce.Number accepts them.
func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// safeEqual is == that tolerates uncomparable dynamic types.
func safeEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// PropertyCondition guards an action: the action executes only when the
// named property of the target currently satisfies the comparison.
type PropertyCondition struct {
	Target    string    `json:"target"`
	Property  string    `json:"property"`
	Condition Condition `json:"condition"`
	Value     string    `json:"value"`
}

// Check reads the property and compares it against Value coerced to the
// property's declared type. A target or property that cannot be resolved
// fails the check.
func (pc *PropertyCondition) Check(_ context.Context, env *Env) (bool, error) {
	target, err := resolveTarget(env, pc.Target)
	if err != nil {
		return false, err
	}
	name := memberName(pc.Property)
	prop, ok := target.Capabilities().Property(name)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s", device.ErrUnknownProperty, target.TargetName(), name)
	}
	want := env.Coercer.Coerce(pc.Value, prop.Type)
	return Compare(prop.Get(), want, pc.Condition), nil
}
