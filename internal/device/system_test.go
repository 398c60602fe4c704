package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (n *recordingNotifier) NotifyOncePerValidity(key, _ string, _ time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
	return true
}

// countingDevice counts updates and optionally fails or panics.
type countingDevice struct {
	Switch
	mu      sync.Mutex
	updates int
	fail    error
	panics  bool
}

func (c *countingDevice) Update(context.Context) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	if c.panics {
		panic("driver crashed")
	}
	return c.fail
}

func TestSystem_UpdateFansOutAndContainsFailures(t *testing.T) {
	h := newHarness(t)
	good := &countingDevice{Switch: Switch{Base: Base{Name: "Good"}}}
	bad := &countingDevice{Switch: Switch{Base: Base{Name: "Bad"}}, fail: errors.New("timeout")}
	crashy := &countingDevice{Switch: Switch{Base: Base{Name: "Crashy"}}, panics: true}
	for _, d := range []Device{good, bad, crashy} {
		if err := h.registry.AddDevice("Kitchen", d); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
	}

	sys := NewSystem(h.registry, nil, SystemConfig{Workers: 2})
	if err := sys.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	for range 2 {
		if err := sys.Update(context.Background()); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	for _, d := range []*countingDevice{good, bad, crashy} {
		if d.updates != 2 {
			t.Errorf("%s updated %d times, want 2", d.Name, d.updates)
		}
	}
}

func TestSystem_InactivityAlert(t *testing.T) {
	h := newHarness(t)
	thermo := &Sensor{Base: Base{Name: "Thermo"}}
	if err := h.registry.AddDevice("Kitchen", thermo); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	thermo.AddData(h.now, map[string]any{"temperature": 20})

	notifier := &recordingNotifier{}
	sys := NewSystem(h.registry, notifier, SystemConfig{CheckInterval: 15 * time.Minute})
	if err := sys.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// Checks run at 15..90 minutes; only the 60 minute one falls in the
	// four-to-five interval window.
	ctx := context.Background()
	for range 6 {
		h.advance(15 * time.Minute)
		if err := sys.Update(ctx); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	if len(notifier.keys) != 1 || notifier.keys[0] != "inactive:Kitchen.Thermo" {
		t.Errorf("alerts = %v, want one for Kitchen.Thermo", notifier.keys)
	}
}

func TestSystem_StopClosesRegistry(t *testing.T) {
	h := newHarness(t)
	lamp := &Switch{Base: Base{Name: "Lamp"}, StateTopic: "lamp/state"}
	if err := h.registry.AddDevice("Kitchen", lamp); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	sys := NewSystem(h.registry, nil, SystemConfig{})
	if sys.Name() != "devices" {
		t.Errorf("Name() = %s", sys.Name())
	}
	if err := sys.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(h.transport.handlers) != 0 {
		t.Errorf("handlers left after Stop: %v", h.transport.handlers)
	}
}
