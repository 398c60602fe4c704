package automation

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/solar"
)

// Trigger decides when an action fires. The set of triggers is closed:
// tick-driven triggers implement tickTrigger and bus-driven ones
// implement eventTrigger.
type Trigger interface {
	// Kind is the type tag used when encoding the trigger.
	Kind() string
	// Latched reports whether the trigger is holding a fired state.
	Latched() bool
	validate() error
}

// tickTrigger is evaluated once per tick. tick returns true on a rising edge.
type tickTrigger interface {
	Trigger
	tick(now time.Time, env *Env) bool
}

// eventTrigger is evaluated inline in the bus callback. observe returns
// true when the event should fire the action.
type eventTrigger interface {
	Trigger
	observe(e eventbus.Event, env *Env) bool
}

// Duration is a time.Duration encoded as a Go duration string ("1h30m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"15m\": %w", err)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// EventTrigger fires on every bus event that matches its filters. Empty
// Device, Room and Data filters match anything.
type EventTrigger struct {
	Event  eventbus.EventType `json:"event"`
	Device string             `json:"device,omitempty"`
	Room   string             `json:"room,omitempty"`
	// Data is a literal compared with the event payload after coercion.
	Data string `json:"data,omitempty"`
}

// Kind implements Trigger.
func (*EventTrigger) Kind() string { return "event" }

// Latched implements Trigger. Event triggers fire on every match and never latch.
func (*EventTrigger) Latched() bool { return false }

func (t *EventTrigger) validate() error {
	if !t.Event.Valid() {
		return fmt.Errorf("%w: event type %v", ErrInvalidTrigger, t.Event)
	}
	return nil
}

func (t *EventTrigger) observe(e eventbus.Event, env *Env) bool {
	return t.matches(e, env)
}

func (t *EventTrigger) matches(e eventbus.Event, env *Env) bool {
	if e.Type != t.Event {
		return false
	}
	if t.Device != "" && e.SourceName() != t.Device {
		return false
	}
	if t.Room != "" && e.SourceRoom() != t.Room {
		return false
	}
	if t.Data != "" && !Compare(e.Data, env.Coercer.Coerce(t.Data, coerce.Any), Equal) {
		return false
	}
	return true
}

// SensorTrigger fires when a sensor reading crosses into a condition, for
// example "temperature ≥ 25". It stays latched while readings keep
// satisfying the condition and re-arms on the first reading that does not.
type SensorTrigger struct {
	Device    string    `json:"device,omitempty"`
	Room      string    `json:"room,omitempty"`
	SubName   string    `json:"sub_name"`
	Condition Condition `json:"condition"`
	Value     string    `json:"value"`

	mu      sync.Mutex
	latched bool
}

// Kind implements Trigger.
func (*SensorTrigger) Kind() string { return "sensor" }

// Latched implements Trigger.
func (t *SensorTrigger) Latched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched
}

func (t *SensorTrigger) validate() error {
	if t.SubName == "" {
		return fmt.Errorf("%w: sensor trigger needs a sub_name", ErrInvalidTrigger)
	}
	if !t.Condition.Valid() {
		return fmt.Errorf("%w: condition %v", ErrInvalidTrigger, t.Condition)
	}
	return nil
}

func (t *SensorTrigger) observe(e eventbus.Event, env *Env) bool {
	base := EventTrigger{Event: eventbus.SensorDataAdded, Device: t.Device, Room: t.Room}
	if !base.matches(e, env) {
		return false
	}
	values, ok := e.Data.(map[string]float64)
	if !ok {
		return false
	}
	v, ok := values[t.SubName]
	if !ok {
		return false
	}
	active := Compare(v, env.Coercer.Coerce(t.Value, coerce.FloatT), t.Condition)

	t.mu.Lock()
	defer t.mu.Unlock()
	rising := active && !t.latched
	t.latched = active
	return rising
}

// ScheduleTrigger fires once at a wall-clock minute on selected days.
//
// The minute is Time ("HH:MM") or, when Solar is set, the time of that
// solar event; Offset shifts either. Weekdays (1=Monday..7=Sunday) and
// MonthDays (1..31) restrict the days; when both are empty every day
// matches, when both are set either may match.
type ScheduleTrigger struct {
	Time      string      `json:"time,omitempty"`
	Solar     solar.Event `json:"solar,omitempty"`
	Offset    Duration    `json:"offset,omitempty"`
	Weekdays  []int       `json:"weekdays,omitempty"`
	MonthDays []int       `json:"month_days,omitempty"`

	mu      sync.Mutex
	latched bool
}

// Kind implements Trigger.
func (*ScheduleTrigger) Kind() string { return "schedule" }

// Latched implements Trigger.
func (t *ScheduleTrigger) Latched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched
}

func (t *ScheduleTrigger) validate() error {
	if t.Solar == 0 {
		if t.Time == "" {
			return fmt.Errorf("%w: schedule needs a time or a solar event", ErrInvalidTrigger)
		}
		if _, err := parseClock(t.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
	}
	for _, d := range t.Weekdays {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: weekday %d outside 1-7", ErrInvalidTrigger, d)
		}
	}
	for _, d := range t.MonthDays {
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: month day %d outside 1-31", ErrInvalidTrigger, d)
		}
	}
	return nil
}

func (t *ScheduleTrigger) tick(now time.Time, env *Env) bool {
	active := t.dayMatches(now) && t.minuteMatches(now, env)

	t.mu.Lock()
	defer t.mu.Unlock()
	rising := active && !t.latched
	t.latched = active
	return rising
}

func (t *ScheduleTrigger) dayMatches(now time.Time) bool {
	if len(t.Weekdays) == 0 && len(t.MonthDays) == 0 {
		return true
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return slices.Contains(t.Weekdays, weekday) || slices.Contains(t.MonthDays, now.Day())
}

func (t *ScheduleTrigger) minuteMatches(now time.Time, env *Env) bool {
	target, ok := t.target(now, env)
	if !ok {
		return false
	}
	target = target.In(now.Location())
	return target.Hour() == now.Hour() && target.Minute() == now.Minute()
}

// target returns today's firing time.
func (t *ScheduleTrigger) target(now time.Time, env *Env) (time.Time, bool) {
	var base time.Time
	if t.Solar != 0 {
		if env.Sun == nil {
			return time.Time{}, false
		}
		at, err := env.Sun.At(t.Solar, now)
		if err != nil {
			return time.Time{}, false
		}
		base = at
	} else {
		clock, err := parseClock(t.Time)
		if err != nil {
			return time.Time{}, false
		}
		base = atClock(now, clock)
	}
	return base.Add(time.Duration(t.Offset)), true
}

// TimeTrigger fires every Interval. Next is the absolute deadline; after
// firing it advances by whole intervals until it is in the future, so a
// stalled loop fires once on catch-up rather than once per missed interval.
//
// When Next is unset it is derived from Start ("HH:MM" today, default
// midnight) on the first tick.
type TimeTrigger struct {
	Interval Duration  `json:"interval"`
	Start    string    `json:"start,omitempty"`
	Next     time.Time `json:"next,omitzero"`

	mu sync.Mutex
}

// Kind implements Trigger.
func (*TimeTrigger) Kind() string { return "time" }

// Latched implements Trigger. Time triggers never latch.
func (*TimeTrigger) Latched() bool { return false }

// Deadline returns the next firing time.
func (t *TimeTrigger) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Next
}

func (t *TimeTrigger) validate() error {
	if t.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
	}
	if t.Start != "" {
		if _, err := parseClock(t.Start); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
	}
	return nil
}

func (t *TimeTrigger) tick(now time.Time, _ *Env) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Interval <= 0 {
		return false
	}
	if t.Next.IsZero() {
		t.primeLocked(now)
		return false
	}
	if now.Before(t.Next) {
		return false
	}
	t.advance(now)
	return true
}

// prime sets the first deadline when none is stored.
func (t *TimeTrigger) prime(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Next.IsZero() && t.Interval > 0 {
		t.primeLocked(now)
	}
}

func (t *TimeTrigger) primeLocked(now time.Time) {
	start, _ := parseClock(t.Start)
	t.Next = atClock(now, start)
	t.advance(now)
}

// advance moves Next past now in whole intervals. Callers hold mu.
func (t *TimeTrigger) advance(now time.Time) {
	interval := time.Duration(t.Interval)
	if !t.Next.After(now) {
		steps := now.Sub(t.Next)/interval + 1
		t.Next = t.Next.Add(steps * interval)
	}
}

// parseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("time %q is not HH:MM", s)
}

// atClock returns the wall-clock time clock on day's date in day's location.
// Adding clock to midnight would be off by an hour on DST change days.
func atClock(day time.Time, clock time.Duration) time.Time {
	y, m, d := day.Date()
	h := int(clock / time.Hour)
	mm := int(clock % time.Hour / time.Minute)
	sec := int(clock % time.Minute / time.Second)
	return time.Date(y, m, d, h, mm, sec, 0, day.Location())
}

// MarshalJSON encodes the trigger under its lock, since ticks move Next.
func (t *TimeTrigger) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(struct {
		Interval Duration  `json:"interval"`
		Start    string    `json:"start,omitempty"`
		Next     time.Time `json:"next,omitzero"`
	}{t.Interval, t.Start, t.Next})
}
