package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/timeseries"
)

// Sensor is a device that records time-series readings.
//
// Readings arrive either from a driver calling AddData directly or as JSON
// objects on StateTopic. When PollTopic is set, Update publishes PollPayload
// there at most once per PollInterval to ask the device for fresh data.
type Sensor struct {
	Base
	StateTopic   string             `json:"state_topic,omitempty"`
	PollTopic    string             `json:"poll_topic,omitempty"`
	PollPayload  string             `json:"poll_payload,omitempty"`
	PollInterval time.Duration      `json:"poll_interval,omitempty"`
	Options      timeseries.Options `json:"options"`

	env      *Env
	series   *timeseries.Series
	lastPoll time.Time
	caps     *Capabilities
	capsOnce sync.Once
	// seriesOnce guards lazy creation so AddData works before Setup.
	seriesOnce sync.Once
}

// Kind implements Device.
func (s *Sensor) Kind() string { return "sensor" }

// ID is the persistence key of the sensor's series, "Room.Device".
func (s *Sensor) ID() string { return s.TargetName() }

// Capabilities implements Target.
func (s *Sensor) Capabilities() *Capabilities {
	s.capsOnce.Do(func() {
		s.caps = NewCapabilities()
		s.caps.AddProperty(Property{
			Name: "Values",
			Type: coerce.Any,
			Get:  func() any { return s.Values() },
		})
		s.caps.AddMethod(Method{
			Name:   "AddReading",
			Params: []coerce.Type{coerce.StringT, coerce.FloatT},
			Call: func(_ context.Context, args []any) error {
				name, ok := args[0].(string)
				if !ok {
					return fmt.Errorf("%w: channel name %v", ErrInvalidArgument, args[0])
				}
				s.AddData(s.now(), map[string]any{name: args[1]})
				return nil
			},
		})
	})
	return s.caps
}

// Series returns the sensor's time-series store.
func (s *Sensor) Series() *timeseries.Series {
	s.seriesOnce.Do(func() {
		s.series = timeseries.New(s.Options)
	})
	return s.series
}

// Setup implements Device.
func (s *Sensor) Setup(env *Env) error {
	s.env = env.withDefaults()
	if s.env.ResetDetection {
		s.Options.ResetDetection = true
	}
	if s.env.Retention > 0 && s.Options.Retention == 0 {
		s.Options.Retention = s.env.Retention
	}

	// Options may have changed above; keep any data restored before Setup.
	var samples []timeseries.Sample
	var last map[string]float64
	if s.series != nil {
		samples, last = s.series.Samples(), s.series.LastReadings()
	}
	s.seriesOnce.Do(func() {})
	s.series = timeseries.New(s.Options)
	s.series.Restore(samples, last)
	s.series.SetCalibrator(s.env.Calibrator)
	s.series.SetLocation(s.env.Location)

	return s.env.subscribe(s.StateTopic, s.handleState)
}

// Update implements Device. It requests fresh readings when polling is configured.
func (s *Sensor) Update(ctx context.Context) error {
	if s.PollTopic == "" || s.env == nil {
		return nil
	}
	now := s.env.Now()

	s.mu.Lock()
	due := s.lastPoll.IsZero() || now.Sub(s.lastPoll) >= s.PollInterval
	if due {
		s.lastPoll = now
	}
	s.mu.Unlock()

	if !due {
		return nil
	}
	return s.env.publish(ctx, s.PollTopic, []byte(s.PollPayload), false)
}

// Stop implements Device.
func (s *Sensor) Stop() error {
	s.env.unsubscribe(s.StateTopic)
	return nil
}

// AddData ingests readings at t, fires SensorDataAdded with the values
// written, then archives. Fields that fail to parse or calibrate are logged
// and skipped. It returns the written values.
func (s *Sensor) AddData(t time.Time, readings map[string]any) map[string]float64 {
	series := s.Series()
	written, errs := series.AddData(t, readings)
	for _, err := range errs {
		s.logger().Warn("sensor reading skipped", "sensor", s.ID(), "error", err)
	}
	if len(written) == 0 {
		return written
	}

	s.MarkOnline(t)
	if s.env != nil {
		s.env.Bus.Fire(s, eventbus.SensorDataAdded, written)
	}
	series.Archive(s.now())
	return written
}

// Values returns the latest value of every channel.
func (s *Sensor) Values() map[string]float64 {
	return s.Series().Values(s.now())
}

// Range returns the points recorded in [from, to).
func (s *Sensor) Range(from, to time.Time) []timeseries.Point {
	return s.Series().Range(from, to)
}

func (s *Sensor) handleState(_ string, payload []byte) error {
	var readings map[string]any
	if err := json.Unmarshal(payload, &readings); err != nil {
		return fmt.Errorf("%s: state payload is not a JSON object: %w", s.ID(), err)
	}
	s.AddData(s.now(), readings)
	return nil
}

func (s *Sensor) now() time.Time {
	if s.env == nil {
		return time.Now()
	}
	return s.env.Now()
}

func (s *Sensor) logger() Logger {
	if s.env == nil {
		return noopLogger{}
	}
	return s.env.Logger
}
