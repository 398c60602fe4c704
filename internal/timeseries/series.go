package timeseries

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/nerrad567/homecore/internal/coerce"
)

// DefaultRetention is how long samples are kept when Options.Retention is zero.
const DefaultRetention = 365 * 24 * time.Hour

// resetThreshold is the drop beyond which a cumulative counter is treated as
// reset when reset detection is enabled.
const resetThreshold = 1.0

var (
	// ErrMalformedReading is returned for a reading that is not numeric.
	ErrMalformedReading = errors.New("timeseries: malformed reading")

	// ErrCalibration is returned when a calibration expression fails.
	ErrCalibration = errors.New("timeseries: calibration failed")
)

// Calibrator evaluates a calibration expression with x bound to the raw value.
type Calibrator interface {
	Eval(expr string, x float64) (float64, error)
}

// Options configures how a Series ingests and ages its data.
type Options struct {
	// SubNames renames raw reading keys to channel names.
	SubNames map[string]string `json:"sub_names,omitempty"`

	// SumAggregated channels are cumulative counters stored as deltas.
	SumAggregated []string `json:"sum_aggregated,omitempty"`

	// Calibration maps a channel to an expression over its raw value x.
	Calibration map[string]string `json:"calibration,omitempty"`

	// NotTimeseries channels carry state; FillGaps re-stamps their last value.
	NotTimeseries []string `json:"not_timeseries,omitempty"`

	Units map[string]string `json:"units,omitempty"`

	// Retention defaults to DefaultRetention.
	Retention time.Duration `json:"retention,omitempty"`

	// ResetDetection treats a drop of more than one unit in a cumulative
	// counter as a reset instead of noise.
	ResetDetection bool `json:"reset_detection,omitempty"`
}

// Sample is one stored value, the unit of persistence.
type Sample struct {
	Time    time.Time `json:"time"`
	SubName string    `json:"sub_name"`
	Value   float64   `json:"value"`
}

// Point is all channel values stored at one timestamp.
type Point struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Metadata describes a series for charting clients.
type Metadata struct {
	SubNames      []string          `json:"sub_names"`
	Units         map[string]string `json:"units,omitempty"`
	SumAggregated []string          `json:"sum_aggregated,omitempty"`
	LastUpdate    time.Time         `json:"last_update"`
	Samples       int               `json:"samples"`
}

// Series is the time-series store of one sensor.
//
// Data is keyed by ingestion timestamp (unix milliseconds). Each AddData call
// writes at most one timestamp. Older data is progressively aggregated:
// entries older than yesterday's midnight collapse to one bucket per day
// (Archive), entries between that and 24 hours ago collapse to one bucket per
// check interval (Compact), and the last 24 hours stay raw.
//
// Thread Safety: all methods are safe for concurrent use. One mutex guards
// both the samples and the last cumulative readings, since MQTT callbacks and
// the tick loop both ingest.
type Series struct {
	mu         sync.RWMutex
	opts       Options
	sum        map[string]bool
	state      map[string]bool
	data       map[int64]map[string]float64
	last       map[string]float64
	calibrator Calibrator
	loc        *time.Location
}

// New creates an empty series.
func New(opts Options) *Series {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Series{
		opts:  opts,
		sum:   lo.SliceToMap(opts.SumAggregated, func(s string) (string, bool) { return s, true }),
		state: lo.SliceToMap(opts.NotTimeseries, func(s string) (string, bool) { return s, true }),
		data:  make(map[int64]map[string]float64),
		last:  make(map[string]float64),
		loc:   time.Local,
	}
}

// SetCalibrator sets the evaluator for calibration expressions.
func (s *Series) SetCalibrator(c Calibrator) {
	s.mu.Lock()
	s.calibrator = c
	s.mu.Unlock()
}

// SetLocation sets the zone that defines calendar days. Default is time.Local.
func (s *Series) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// Options returns the configuration the series was created with.
func (s *Series) Options() Options {
	return s.opts
}

// IsSumAggregated reports whether subName is a cumulative counter channel.
func (s *Series) IsSumAggregated(subName string) bool {
	return s.sum[subName]
}

// AddData ingests one batch of raw readings at time t.
//
// Each reading is renamed, converted to a number, calibrated and, for
// cumulative channels, turned into a delta against the previous reading.
// A reading that fails any step is skipped and reported in errs; its
// siblings are still stored. The returned map holds exactly the values
// written by this call.
func (s *Series) AddData(t time.Time, readings map[string]any) (written map[string]float64, errs []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raws := lo.Keys(readings)
	sort.Strings(raws)

	written = make(map[string]float64, len(readings))
	for _, raw := range raws {
		name := raw
		if renamed, ok := s.opts.SubNames[raw]; ok && renamed != "" {
			name = renamed
		}

		value, ok := coerce.Number(readings[raw])
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			errs = append(errs, fmt.Errorf("%w: %s=%v", ErrMalformedReading, name, readings[raw]))
			continue
		}

		if expr := s.opts.Calibration[name]; expr != "" {
			calibrated, err := s.calibrate(expr, value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCalibration, name, err))
				continue
			}
			value = calibrated
		}

		if s.sum[name] {
			value = s.delta(name, value)
		}
		written[name] = value
	}

	if len(written) == 0 {
		return written, errs
	}

	key := t.UnixMilli()
	bucket, ok := s.data[key]
	if !ok {
		bucket = make(map[string]float64, len(written))
		s.data[key] = bucket
	}
	for name, v := range written {
		bucket[name] = v
	}
	return written, errs
}

func (s *Series) calibrate(expr string, x float64) (float64, error) {
	if s.calibrator == nil {
		return 0, errors.New("no calibrator configured")
	}
	v, err := s.calibrator.Eval(expr, x)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression produced %v", v)
	}
	return v, nil
}

// delta records value as the channel's latest cumulative reading and returns
// the increase since the previous one. The first reading is a baseline and
// records zero.
func (s *Series) delta(name string, value float64) float64 {
	prev, seen := s.last[name]
	s.last[name] = value
	if !seen {
		return 0
	}

	d := round2(value - prev)
	if d < 0 {
		if s.opts.ResetDetection && prev-value > resetThreshold {
			return round2(value)
		}
		return 0
	}
	return math.Max(d, 0)
}

// Archive purges samples older than the retention period and collapses every
// calendar day before yesterday into a single midnight bucket. Cumulative
// channels are summed, others averaged. Days already holding one bucket are
// left alone, so running Archive twice changes nothing.
func (s *Series) Archive(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purgeBefore := now.Add(-s.opts.Retention).UnixMilli()
	for key := range s.data {
		if key < purgeBefore {
			delete(s.data, key)
		}
	}

	boundary := midnight(now.In(s.loc)).AddDate(0, 0, -1).UnixMilli()
	s.collapse(func(key int64) (int64, bool) {
		if key >= boundary {
			return 0, false
		}
		return midnight(time.UnixMilli(key).In(s.loc)).UnixMilli(), true
	})
}

// Compact collapses samples between yesterday's midnight and 24 hours before
// now into one bucket per interval, aligned to the interval within the hour.
// Like Archive it is idempotent.
func (s *Series) Compact(now time.Time, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from := midnight(now.In(s.loc)).AddDate(0, 0, -1).UnixMilli()
	to := now.Add(-24 * time.Hour).UnixMilli()
	s.collapse(func(key int64) (int64, bool) {
		if key < from || key >= to {
			return 0, false
		}
		return time.UnixMilli(key).In(s.loc).Truncate(interval).UnixMilli(), true
	})
}

// collapse groups the timestamps selected by bucketOf and replaces each group
// of more than one timestamp with a single aggregated entry. Callers hold mu.
func (s *Series) collapse(bucketOf func(key int64) (int64, bool)) {
	groups := make(map[int64][]int64)
	for key := range s.data {
		if bucket, ok := bucketOf(key); ok {
			groups[bucket] = append(groups[bucket], key)
		}
	}

	for bucket, keys := range groups {
		if len(keys) < 2 {
			continue
		}
		totals := make(map[string]float64)
		counts := make(map[string]int)
		for _, key := range keys {
			for name, v := range s.data[key] {
				totals[name] += v
				counts[name]++
			}
			delete(s.data, key)
		}

		merged := make(map[string]float64, len(totals))
		for name, total := range totals {
			if s.sum[name] {
				merged[name] = round2(total)
			} else {
				merged[name] = round2(total / float64(counts[name]))
			}
		}
		s.data[bucket] = merged
	}
}

// FillGaps re-stamps the last value of every state channel at now, so a
// state that has not changed still shows up in the current interval.
func (s *Series) FillGaps(now time.Time) {
	if len(s.state) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latestLocked()
	key := now.UnixMilli()
	for name := range s.state {
		v, ok := latest[name]
		if !ok {
			continue
		}
		bucket, exists := s.data[key]
		if !exists {
			bucket = make(map[string]float64)
			s.data[key] = bucket
		}
		if _, present := bucket[name]; !present {
			bucket[name] = v
		}
	}
}

// Values returns the most recent value of every channel. Cumulative
// channels report the sum of today's deltas instead.
func (s *Series) Values(now time.Time) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := s.latestLocked()
	if len(s.sum) == 0 {
		return values
	}

	todayStart := midnight(now.In(s.loc))
	from, to := todayStart.UnixMilli(), todayStart.AddDate(0, 0, 1).UnixMilli()
	for name := range values {
		if !s.sum[name] {
			continue
		}
		total := 0.0
		for key, bucket := range s.data {
			if key >= from && key < to {
				total += bucket[name]
			}
		}
		values[name] = round2(total)
	}
	return values
}

// latestLocked returns the newest value of each channel. Callers hold mu.
func (s *Series) latestLocked() map[string]float64 {
	keys := s.sortedKeysLocked()
	values := make(map[string]float64)
	for i := len(keys) - 1; i >= 0; i-- {
		for name, v := range s.data[keys[i]] {
			if _, ok := values[name]; !ok {
				values[name] = v
			}
		}
	}
	return values
}

// Range returns the points with from <= time < to, oldest first.
func (s *Series) Range(from, to time.Time) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower, upper := from.UnixMilli(), to.UnixMilli()
	var points []Point
	for _, key := range s.sortedKeysLocked() {
		if key < lower || key >= upper {
			continue
		}
		points = append(points, Point{Time: time.UnixMilli(key).In(s.loc), Values: clone(s.data[key])})
	}
	return points
}

// Samples flattens the series for persistence, ordered by time then channel.
func (s *Series) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var samples []Sample
	for _, key := range s.sortedKeysLocked() {
		bucket := s.data[key]
		names := lo.Keys(bucket)
		sort.Strings(names)
		for _, name := range names {
			samples = append(samples, Sample{Time: time.UnixMilli(key), SubName: name, Value: bucket[name]})
		}
	}
	return samples
}

// LastReadings returns the last raw cumulative reading of each counter channel.
func (s *Series) LastReadings() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.last)
}

// Restore replaces the series content with previously saved samples.
func (s *Series) Restore(samples []Sample, last map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[int64]map[string]float64)
	for _, sample := range samples {
		key := sample.Time.UnixMilli()
		bucket, ok := s.data[key]
		if !ok {
			bucket = make(map[string]float64)
			s.data[key] = bucket
		}
		bucket[sample.SubName] = sample.Value
	}
	s.last = clone(last)
	if s.last == nil {
		s.last = make(map[string]float64)
	}
}

// Metadata summarises the series.
func (s *Series) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]struct{})
	var lastKey int64
	for key, bucket := range s.data {
		if key > lastKey {
			lastKey = key
		}
		for name := range bucket {
			names[name] = struct{}{}
		}
	}
	subNames := lo.Keys(names)
	sort.Strings(subNames)

	sums := lo.Keys(s.sum)
	sort.Strings(sums)

	meta := Metadata{
		SubNames:      subNames,
		Units:         s.opts.Units,
		SumAggregated: sums,
		Samples:       len(s.data),
	}
	if lastKey != 0 {
		meta.LastUpdate = time.UnixMilli(lastKey).In(s.loc)
	}
	return meta
}

// Len returns the number of stored timestamps.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Series) sortedKeysLocked() []int64 {
	keys := lo.Keys(s.data)
	slices.Sort(keys)
	return keys
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clone(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
