// Package solar computes daily sun events for a fixed location using the
// NOAA sunrise equation.
package solar

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ErrUnknownEvent is returned when a solar event name is not recognised.
var ErrUnknownEvent = errors.New("solar: unknown event")

// Event names a daily sun event.
type Event int

// Sun events in the order they occur.
const (
	Dawn Event = iota + 1
	Sunrise
	Noon
	Sunset
	Dusk
)

var eventNames = map[Event]string{
	Dawn:    "dawn",
	Sunrise: "sunrise",
	Noon:    "noon",
	Sunset:  "sunset",
	Dusk:    "dusk",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ParseEvent looks up an event by name, case-insensitively.
func ParseEvent(name string) (Event, error) {
	for e, n := range eventNames {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// MarshalJSON encodes the event by name.
func (e Event) MarshalJSON() ([]byte, error) {
	if _, ok := eventNames[e]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, int(e))
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes an event from its name.
func (e *Event) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("solar event must be a string: %w", err)
	}
	parsed, err := ParseEvent(name)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Times holds the sun events of one calendar day.
type Times struct {
	Date    string    `json:"date"`
	Dawn    time.Time `json:"dawn"`
	Sunrise time.Time `json:"sunrise"`
	Noon    time.Time `json:"noon"`
	Sunset  time.Time `json:"sunset"`
	Dusk    time.Time `json:"dusk"`
}

// Get returns the time of a single event.
func (t *Times) Get(e Event) (time.Time, error) {
	switch e {
	case Dawn:
		return t.Dawn, nil
	case Sunrise:
		return t.Sunrise, nil
	case Noon:
		return t.Noon, nil
	case Sunset:
		return t.Sunset, nil
	case Dusk:
		return t.Dusk, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %d", ErrUnknownEvent, int(e))
	}
}

// Calculator computes sun events for a configured latitude and longitude.
//
// Only the most recently requested date is cached; asking for another date
// replaces it. Schedule triggers ask for "today" on every tick, so the
// calculation runs once per day.
type Calculator struct {
	lat, lon float64
	loc      *time.Location

	mu     sync.Mutex
	cached *Times
}

// NewCalculator creates a calculator. A nil loc means time.Local.
func NewCalculator(lat, lon float64, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{lat: lat, lon: lon, loc: loc}
}

// Times returns the sun events for the calendar day of date in the
// calculator's location.
func (c *Calculator) Times(date time.Time) *Times {
	day := date.In(c.loc).Format(time.DateOnly)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.cached.Date == day {
		return c.cached
	}
	c.cached = c.calculate(date.In(c.loc))
	return c.cached
}

// At returns the time of event e on the day of date.
func (c *Calculator) At(e Event, date time.Time) (time.Time, error) {
	return c.Times(date).Get(e)
}

func (c *Calculator) calculate(date time.Time) *Times {
	// The sunrise equation expects the Julian day at noon.
	jd := julianDay(date) + 0.5
	transit, dec := solarTransit(jd, c.lon)

	return &Times{
		Date:    date.Format(time.DateOnly),
		Dawn:    c.toTime(transit - hourAngle(c.lat, dec, -6.0)/360.0),
		Sunrise: c.toTime(transit - hourAngle(c.lat, dec, -0.833)/360.0),
		Noon:    c.toTime(transit),
		Sunset:  c.toTime(transit + hourAngle(c.lat, dec, -0.833)/360.0),
		Dusk:    c.toTime(transit + hourAngle(c.lat, dec, -6.0)/360.0),
	}
}

func julianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarTransit returns the Julian date of solar noon and the sun's
// declination in radians.
func solarTransit(jd, lon float64) (float64, float64) {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := radians(m)
	center := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)
	lambda := math.Mod(m+center+180+102.9372, 360.0)
	lambdaRad := radians(lambda)

	transit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)
	dec := math.Asin(math.Sin(lambdaRad) * math.Sin(radians(23.44)))
	return transit, dec
}

// hourAngle returns the hour angle in degrees at which the sun crosses
// the given altitude. Polar day and night clamp to 180 and 0.
func hourAngle(lat, dec, altitude float64) float64 {
	latRad := radians(lat)
	cosOmega := (math.Sin(radians(altitude)) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))
	cosOmega = math.Max(-1, math.Min(1, cosOmega))
	return math.Acos(cosOmega) * 180.0 / math.Pi
}

func (c *Calculator) toTime(jd float64) time.Time {
	secs := (jd - 2440587.5) * 86400.0
	whole := math.Floor(secs)
	return time.Unix(int64(whole), int64((secs-whole)*1e9)).In(c.loc).Truncate(time.Second)
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }
