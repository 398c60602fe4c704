package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
	"github.com/nerrad567/homecore/internal/timeseries"
	_ "github.com/nerrad567/homecore/migrations"
)

type nullTransport struct{}

func (nullTransport) Publish(string, []byte, byte, bool) error                  { return nil }
func (nullTransport) Subscribe(string, byte, func(string, []byte) error) error { return nil }
func (nullTransport) Unsubscribe(string) error                                 { return nil }

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// graph is one process worth of registries over a shared database.
type graph struct {
	devices *device.Registry
	actions *automation.Registry
	store   *Store
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "snapshot.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newGraph(db *database.DB) *graph {
	devices := device.NewRegistry(&device.Env{Transport: nullTransport{}, Now: clock, Location: time.UTC})
	actions := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
	store := NewStore(devices, device.NewSQLiteRepository(db.DB), timeseries.NewSQLiteRepository(db.DB), actions)
	return &graph{devices: devices, actions: actions, store: store}
}

func TestStore_SaveThenLoad(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	first := newGraph(db)
	if _, err := first.devices.AddRoom("Kitchen"); err != nil {
		t.Fatalf("AddRoom() error = %v", err)
	}
	thermo := &device.Sensor{Base: device.Base{Name: "Thermo"}}
	lamp := &device.Switch{Base: device.Base{Name: "Lamp"}, CommandTopic: "kitchen/lamp/set"}
	for _, d := range []device.Device{thermo, lamp} {
		if err := first.devices.AddDevice("Kitchen", d); err != nil {
			t.Fatalf("AddDevice(%s) error = %v", d.Common().Name, err)
		}
	}
	thermo.AddData(now.Add(-time.Hour), map[string]any{"temperature": 20.0})
	thermo.AddData(now, map[string]any{"temperature": 21.5, "humidity": 40})

	poll := &automation.Action{
		Name:     "poll",
		Enabled:  true,
		Trigger:  &automation.TimeTrigger{Interval: automation.Duration(time.Hour)},
		Executor: &automation.CallExecutor{Target: "Kitchen.Lamp", Method: "TurnOn"},
	}
	if err := first.actions.Add(ctx, poll); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := first.actions.Setup(&automation.Env{Resolver: first.devices, Now: clock, Location: time.UTC}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := first.store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := newGraph(db)
	if err := second.store.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d, err := second.devices.Device("Kitchen", "Thermo")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	restored, ok := d.(*device.Sensor)
	if !ok {
		t.Fatalf("Thermo = %T, want *device.Sensor", d)
	}
	values := restored.Values()
	if values["temperature"] != 21.5 || values["humidity"] != 40 {
		t.Errorf("Values() = %v", values)
	}
	if got := len(restored.Series().Samples()); got != 3 {
		t.Errorf("restored %d samples, want 3", got)
	}
	if _, err := second.devices.Device("Kitchen", "Lamp"); err != nil {
		t.Errorf("Lamp not restored: %v", err)
	}

	a, err := second.actions.Get("poll")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	trig, ok := a.Trigger.(*automation.TimeTrigger)
	if !ok {
		t.Fatalf("Trigger = %T", a.Trigger)
	}
	if want := now.Add(time.Hour); !trig.Deadline().Equal(want) {
		t.Errorf("restored deadline = %v, want %v", trig.Deadline(), want)
	}
}

func TestStore_SaveReplacesRemovedDevices(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	g := newGraph(db)
	if _, err := g.devices.AddRoom("Hall"); err != nil {
		t.Fatalf("AddRoom() error = %v", err)
	}
	if err := g.devices.AddDevice("Hall", &device.Switch{Base: device.Base{Name: "Light"}, CommandTopic: "hall/light/set"}); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if err := g.store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := g.devices.RemoveDevice("Hall", "Light"); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if err := g.store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := newGraph(db)
	if err := reloaded.store.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := len(reloaded.devices.Devices()); n != 0 {
		t.Errorf("reloaded %d devices, want 0", n)
	}
	if _, err := reloaded.devices.Room("Hall"); err != nil {
		t.Errorf("room Hall not restored: %v", err)
	}
}

func TestStore_LoadEmptyDatabase(t *testing.T) {
	g := newGraph(openDB(t))
	if err := g.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(g.devices.Rooms()) != 0 || g.actions.Count() != 0 {
		t.Error("empty database should load an empty graph")
	}
}
