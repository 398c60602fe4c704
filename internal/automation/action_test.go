package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/eventbus"
)

// funcExecutor runs an arbitrary function.
type funcExecutor struct {
	fn func(ctx context.Context) error
}

func (*funcExecutor) Kind() string { return "func" }
func (*funcExecutor) executor()    {}

func (f *funcExecutor) Execute(ctx context.Context, _ *Env) error { return f.fn(ctx) }

func countingExecutor(n *atomic.Int32) *funcExecutor {
	return &funcExecutor{fn: func(context.Context) error {
		n.Add(1)
		return nil
	}}
}

// rejectingPool refuses all work.
type rejectingPool struct{}

func (rejectingPool) Submit(string, func()) bool { return false }

func TestAction_SetupAssignsSlug(t *testing.T) {
	clock := &testClock{now: monday}
	a := &Action{Name: "Morning Lights", Enabled: true, Trigger: &ScheduleTrigger{Time: "07:00"}, Executor: &CallExecutor{Target: "Kitchen", Method: "TurnOn"}}

	if err := a.Setup(testEnv(nil, clock)); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if a.Slug != "morning-lights" {
		t.Errorf("Slug = %q, want morning-lights", a.Slug)
	}
}

func TestAction_Validate(t *testing.T) {
	exec := &CallExecutor{Target: "Kitchen", Method: "TurnOn"}
	trig := &TimeTrigger{Interval: Duration(time.Minute)}

	tests := []struct {
		name   string
		action *Action
		want   error
	}{
		{"empty name", &Action{Trigger: trig, Executor: exec}, ErrInvalidName},
		{"no trigger", &Action{Name: "a", Executor: exec}, ErrInvalidAction},
		{"no executor", &Action{Name: "a", Trigger: trig}, ErrInvalidAction},
		{"bad trigger", &Action{Name: "a", Trigger: &TimeTrigger{}, Executor: exec}, ErrInvalidTrigger},
		{"bad condition", &Action{Name: "a", Trigger: trig, Executor: exec, Condition: &PropertyCondition{Target: "Kitchen"}}, ErrUnknownCondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.action.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAction_UpdateFiresOnRisingEdge(t *testing.T) {
	clock := &testClock{now: monday.Add(7*time.Hour + 59*time.Minute)}
	runs := &runLog{}
	env := testEnv(nil, clock)
	env.Runs = runs

	var executed atomic.Int32
	a := &Action{Name: "wake", Enabled: true, Trigger: &ScheduleTrigger{Time: "08:00"}, Executor: countingExecutor(&executed)}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	ctx := context.Background()
	for range 180 {
		if err := a.Update(ctx); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if clock.Now().Equal(monday.Add(8*time.Hour + 30*time.Second)) && a.State() != Triggered {
			t.Errorf("State() = %v inside the minute, want triggered", a.State())
		}
		clock.Advance(time.Second)
	}

	if n := executed.Load(); n != 1 {
		t.Fatalf("executed %d times, want 1", n)
	}
	recorded := runs.all()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(recorded))
	}
	run := recorded[0]
	if run.Status != RunSucceeded || run.Action != "wake" || run.TriggerKind != "schedule" || run.ID == "" {
		t.Errorf("run = %+v", run)
	}
	if !run.StartedAt.Equal(monday.Add(8 * time.Hour)) {
		t.Errorf("StartedAt = %v, want 08:00", run.StartedAt)
	}
	if a.State() != Idle {
		t.Errorf("State() = %v, want idle", a.State())
	}
}

func TestAction_DisabledKeepsLatch(t *testing.T) {
	clock := &testClock{now: monday.Add(8 * time.Hour)}
	var executed atomic.Int32
	a := &Action{Name: "wake", Enabled: false, Trigger: &ScheduleTrigger{Time: "08:00"}, Executor: countingExecutor(&executed)}
	if err := a.Setup(testEnv(nil, clock)); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	ctx := context.Background()

	_ = a.Update(ctx)
	if a.State() != Disabled {
		t.Errorf("State() = %v, want disabled", a.State())
	}

	// Enabling inside the same minute must not fire on the old edge.
	a.SetEnabled(true)
	clock.Advance(10 * time.Second)
	_ = a.Update(ctx)
	if a.State() != Triggered {
		t.Errorf("State() = %v, want triggered", a.State())
	}
	if n := executed.Load(); n != 0 {
		t.Errorf("executed %d times, want 0", n)
	}

	clock.Set(monday.Add(8*time.Hour + time.Minute))
	_ = a.Update(ctx)
	clock.Set(monday.Add(24*time.Hour + 8*time.Hour))
	_ = a.Update(ctx)
	if n := executed.Load(); n != 1 {
		t.Errorf("executed %d times the next day, want 1", n)
	}
}

func TestAction_ConditionGuardsExecution(t *testing.T) {
	clock := &testClock{now: monday}
	thermostat := newFakeTarget("Kitchen.Thermostat")
	runs := &runLog{}
	env := testEnv(fakeResolver{"Kitchen.Thermostat": thermostat}, clock)
	env.Runs = runs

	var executed atomic.Int32
	a := &Action{
		Name:      "heat",
		Enabled:   true,
		Trigger:   &EventTrigger{Event: eventbus.Start},
		Executor:  countingExecutor(&executed),
		Condition: &PropertyCondition{Target: "Kitchen.Thermostat", Property: "Temperature", Condition: Less, Value: "18"},
	}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	ctx := context.Background()

	a.Fire(ctx)
	if n := executed.Load(); n != 0 {
		t.Errorf("executed %d times at 20 degrees, want 0", n)
	}

	thermostat.values["Temperature"] = 16.0
	a.Fire(ctx)
	if n := executed.Load(); n != 1 {
		t.Errorf("executed %d times at 16 degrees, want 1", n)
	}

	recorded := runs.all()
	if len(recorded) != 2 || recorded[0].Status != RunSkipped || recorded[1].Status != RunSucceeded {
		t.Errorf("runs = %+v, want skipped then succeeded", recorded)
	}
}

func TestAction_FailuresAreRecorded(t *testing.T) {
	clock := &testClock{now: monday}
	runs := &runLog{}
	env := testEnv(nil, clock)
	env.Runs = runs
	ctx := context.Background()

	failing := &Action{Name: "fails", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start},
		Executor: &funcExecutor{fn: func(context.Context) error { return errors.New("driver offline") }}}
	panicking := &Action{Name: "panics", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start},
		Executor: &funcExecutor{fn: func(context.Context) error { panic("bad executor") }}}

	for _, a := range []*Action{failing, panicking} {
		if err := a.Setup(env); err != nil {
			t.Fatalf("Setup(%s) error = %v", a.Name, err)
		}
		a.Fire(ctx)
	}

	recorded := runs.all()
	if len(recorded) != 2 {
		t.Fatalf("recorded %d runs, want 2", len(recorded))
	}
	for _, run := range recorded {
		if run.Status != RunFailed || run.Error == "" {
			t.Errorf("run %s = %+v, want failed with an error", run.Action, run)
		}
	}
}

func TestAction_ExecutorTimeout(t *testing.T) {
	env := testEnv(nil, &testClock{now: monday})
	env.ExecutorTimeout = 20 * time.Millisecond
	runs := &runLog{}
	env.Runs = runs

	a := &Action{Name: "slow", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start},
		Executor: &funcExecutor{fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	a.Fire(context.Background())

	recorded := runs.all()
	if len(recorded) != 1 || recorded[0].Status != RunFailed {
		t.Fatalf("runs = %+v, want one failed run", recorded)
	}
}

func TestAction_SingleFlight(t *testing.T) {
	env := testEnv(nil, &testClock{now: monday})

	var active, maxActive, total atomic.Int32
	a := &Action{Name: "exclusive", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start},
		Executor: &funcExecutor{fn: func(context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			total.Add(1)
			return nil
		}}}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Fire(context.Background())
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent executions = %d, want 1", got)
	}
	if got := total.Load(); got != 10 {
		t.Errorf("executions = %d, want 10", got)
	}
}

func TestAction_EventTriggerViaBus(t *testing.T) {
	env := testEnv(nil, &testClock{now: monday})
	env.Pool = inlinePool{}

	var executed atomic.Int32
	a := &Action{Name: "presence", Enabled: true,
		Trigger:  &EventTrigger{Event: eventbus.PresenceChanged, Room: "Hall"},
		Executor: countingExecutor(&executed)}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	env.Bus.Fire(sensorSource{"Hall", "Hall"}, eventbus.PresenceChanged, true)
	env.Bus.Fire(sensorSource{"Hall", "Hall"}, eventbus.PresenceChanged, false)
	env.Bus.Fire(sensorSource{"Kitchen", "Kitchen"}, eventbus.PresenceChanged, true)

	if n := executed.Load(); n != 2 {
		t.Errorf("executed %d times, want 2", n)
	}

	a.Stop()
	if env.Bus.Len() != 0 {
		t.Errorf("bus has %d subscribers after Stop, want 0", env.Bus.Len())
	}
	env.Bus.Fire(sensorSource{"Hall", "Hall"}, eventbus.PresenceChanged, true)
	if n := executed.Load(); n != 2 {
		t.Errorf("executed %d times after Stop, want 2", n)
	}
}

func TestAction_EventTriggerWithoutPool(t *testing.T) {
	env := testEnv(nil, &testClock{now: monday})
	done := make(chan struct{}, 1)
	a := &Action{Name: "async", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start},
		Executor: &funcExecutor{fn: func(context.Context) error {
			done <- struct{}{}
			return nil
		}}}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer a.Stop()

	env.Bus.Fire(nil, eventbus.Start, nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("action did not run")
	}
}

func TestAction_EventDroppedWhenPoolFull(t *testing.T) {
	env := testEnv(nil, &testClock{now: monday})
	env.Pool = rejectingPool{}

	var executed atomic.Int32
	a := &Action{Name: "dropped", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start}, Executor: countingExecutor(&executed)}
	if err := a.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer a.Stop()

	env.Bus.Fire(nil, eventbus.Start, nil)
	if n := executed.Load(); n != 0 {
		t.Errorf("executed %d times, want 0", n)
	}
}

func TestAction_TimeTriggerPrimedAtSetup(t *testing.T) {
	clock := &testClock{now: monday.Add(8*time.Hour + 7*time.Minute)}
	trig := &TimeTrigger{Interval: Duration(30 * time.Minute)}
	a := &Action{Name: "poll", Enabled: true, Trigger: trig, Executor: &CallExecutor{Target: "Kitchen", Method: "TurnOn"}}

	if err := a.Setup(testEnv(nil, clock)); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if want := monday.Add(8*time.Hour + 30*time.Minute); !trig.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v, want %v", trig.Deadline(), want)
	}
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{Disabled: "disabled", Idle: "idle", Triggered: "triggered", State(9): "State(9)"} {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
