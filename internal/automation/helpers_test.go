package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/solar"
)

// fakeTarget records method calls and property writes.
type fakeTarget struct {
	name string
	caps *device.Capabilities

	mu     sync.Mutex
	calls  map[string][][]any
	values map[string]any
}

func newFakeTarget(name string) *fakeTarget {
	f := &fakeTarget{name: name, calls: make(map[string][][]any), values: make(map[string]any)}
	f.caps = device.NewCapabilities()
	f.method("TurnOn")
	f.method("SetLevel", coerce.IntT, coerce.FloatT)
	f.method("SetColor", coerce.PairOf(coerce.Int, coerce.Int))
	f.property("Temperature", coerce.FloatT, 20.0)
	f.property("Label", coerce.StringT, "")
	return f
}

func (f *fakeTarget) method(name string, params ...coerce.Type) {
	f.caps.AddMethod(device.Method{Name: name, Params: params, Call: func(_ context.Context, args []any) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls[name] = append(f.calls[name], args)
		return nil
	}})
}

func (f *fakeTarget) property(name string, t coerce.Type, initial any) {
	f.values[name] = initial
	f.caps.AddProperty(device.Property{
		Name: name,
		Type: t,
		Get: func() any {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.values[name]
		},
		Set: func(_ context.Context, v any) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.values[name] = v
			return nil
		},
	})
}

func (f *fakeTarget) TargetName() string                  { return f.name }
func (f *fakeTarget) Capabilities() *device.Capabilities { return f.caps }

func (f *fakeTarget) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[name])
}

// fakeResolver resolves "Room" and "Room.Device" from a map.
type fakeResolver map[string]device.Target

func (r fakeResolver) Resolve(room, dev string) (device.Target, error) {
	if t, ok := r[room+"."+dev]; ok && dev != "" {
		return t, nil
	}
	if t, ok := r[room]; ok {
		return t, nil
	}
	return nil, device.ErrRoomNotFound
}

// fakeSun returns fixed times of day for every date.
type fakeSun map[solar.Event]time.Duration

func (s fakeSun) At(e solar.Event, date time.Time) (time.Time, error) {
	offset, ok := s[e]
	if !ok {
		return time.Time{}, solar.ErrUnknownEvent
	}
	return atClock(date, offset), nil
}

type sensorSource struct{ name, room string }

func (s sensorSource) EntityName() string { return s.name }
func (s sensorSource) RoomName() string   { return s.room }

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testEnv(targets fakeResolver, clock *testClock) *Env {
	return (&Env{
		Bus:      eventbus.New(),
		Resolver: targets,
		Now:      clock.Now,
		Location: time.UTC,
		Sun:      fakeSun{solar.Sunrise: 6*time.Hour + 12*time.Minute, solar.Sunset: 20*time.Hour + 45*time.Minute},
	}).withDefaults()
}

// inlinePool runs submitted work synchronously.
type inlinePool struct{}

func (inlinePool) Submit(_ string, fn func()) bool {
	fn()
	return true
}

// runLog collects recorded runs.
type runLog struct {
	mu   sync.Mutex
	runs []Run
}

func (l *runLog) RecordRun(_ context.Context, run Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *runLog) all() []Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Run(nil), l.runs...)
}
