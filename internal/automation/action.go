package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/samber/lo"

	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/orchestrator"
)

const maxNameLength = 100

// State is the externally visible state of an action.
type State int

// Action states.
const (
	// Disabled actions still evaluate their trigger but never execute.
	Disabled State = iota
	// Idle actions are waiting for their trigger.
	Idle
	// Triggered actions have fired and are latched until the trigger re-arms.
	Triggered
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RunStatus is the outcome of one execution attempt.
type RunStatus string

// Run statuses.
const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped" // condition not met
)

// Run records one execution attempt of an action.
type Run struct {
	ID          string        `json:"id"`
	Action      string        `json:"action"`
	TriggerKind string        `json:"trigger_kind"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Status      RunStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// Action is an automation rule: when Trigger fires and Condition (if any)
// holds, Executor runs.
//
// Firing happens on a rising edge of the trigger. A disabled action keeps
// evaluating its trigger so that enabling it later does not fire
// immediately on a condition that was already true.
//
// Executions of one action never overlap: event-triggered firings are
// offloaded to the worker pool and may arrive concurrently, so they are
// serialised by a per-action mutex.
type Action struct {
	Name      string
	Slug      string
	Enabled   bool
	Trigger   Trigger
	Executor  Executor
	Condition *PropertyCondition

	mu         sync.Mutex // guards Enabled and the subscription
	run        sync.Mutex // held for the duration of one execution
	env        *Env
	sub        eventbus.Subscription
	subscribed bool
}

type actionJSON struct {
	Name      string             `json:"name"`
	Slug      string             `json:"slug,omitempty"`
	Enabled   bool               `json:"enabled"`
	Trigger   TriggerEnvelope    `json:"trigger"`
	Executor  ExecutorEnvelope   `json:"executor"`
	Condition *PropertyCondition `json:"condition,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a *Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{
		Name:      a.Name,
		Slug:      a.Slug,
		Enabled:   a.IsEnabled(),
		Trigger:   TriggerEnvelope{Trigger: a.Trigger},
		Executor:  ExecutorEnvelope{Executor: a.Executor},
		Condition: a.Condition,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding action: %w", err)
	}
	a.Name = raw.Name
	a.Slug = raw.Slug
	a.Enabled = raw.Enabled
	a.Trigger = raw.Trigger.Trigger
	a.Executor = raw.Executor.Executor
	a.Condition = raw.Condition
	return nil
}

// Validate checks that the action is complete and its trigger parameters
// are in range.
func (a *Action) Validate() error {
	name := strings.TrimSpace(a.Name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, a.Name)
	}
	if a.Trigger == nil {
		return fmt.Errorf("%w: %s has no trigger", ErrInvalidAction, a.Name)
	}
	if a.Executor == nil {
		return fmt.Errorf("%w: %s has no executor", ErrInvalidAction, a.Name)
	}
	if a.Condition != nil && !a.Condition.Condition.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidAction, a.Name, ErrUnknownCondition)
	}
	if err := a.Trigger.validate(); err != nil {
		return fmt.Errorf("%s: %w", a.Name, err)
	}
	return nil
}

// IsEnabled reports whether the action executes when triggered.
func (a *Action) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Enabled
}

// SetEnabled enables or disables execution. The trigger keeps its latch.
func (a *Action) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.Enabled = enabled
	a.mu.Unlock()
}

// State returns the action's current state.
func (a *Action) State() State {
	switch {
	case !a.IsEnabled():
		return Disabled
	case a.Trigger != nil && a.Trigger.Latched():
		return Triggered
	default:
		return Idle
	}
}

// Setup binds the action to the runtime. Event-driven triggers subscribe
// to the bus here.
func (a *Action) Setup(env *Env) error {
	if err := a.Validate(); err != nil {
		return err
	}
	env = env.withDefaults()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.env = env
	if a.Slug == "" {
		a.Slug = slug.Make(a.Name)
	}
	if t, ok := a.Trigger.(*TimeTrigger); ok {
		t.prime(env.now())
	}
	if _, ok := a.Trigger.(eventTrigger); ok && !a.subscribed {
		a.sub = env.Bus.Subscribe(a.handleEvent)
		a.subscribed = true
	}
	env.Logger.Debug("action set up", "action", a.Name, "trigger", a.Trigger.Kind())
	return nil
}

// Stop releases the bus subscription. It waits for a running execution.
func (a *Action) Stop() {
	a.mu.Lock()
	if a.subscribed {
		a.env.Bus.Unsubscribe(a.sub)
		a.subscribed = false
	}
	a.mu.Unlock()

	a.run.Lock()
	defer a.run.Unlock()
}

// Update evaluates tick-driven triggers and executes on a rising edge.
func (a *Action) Update(ctx context.Context) error {
	env := a.environment()
	if env == nil {
		return nil
	}
	t, ok := a.Trigger.(tickTrigger)
	if !ok {
		return nil
	}
	if t.tick(env.now(), env) {
		a.fire(ctx, env)
	}
	return nil
}

// Fire executes the action now, as if its trigger had fired. It respects
// Enabled and Condition.
func (a *Action) Fire(ctx context.Context) {
	if env := a.environment(); env != nil {
		a.fire(ctx, env)
	}
}

func (a *Action) environment() *Env {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.env
}

// handleEvent runs on the firing goroutine. Matching is inline; execution
// is handed to the pool so the publisher is never blocked.
func (a *Action) handleEvent(e eventbus.Event) {
	env := a.environment()
	t, ok := a.Trigger.(eventTrigger)
	if env == nil || !ok || !t.observe(e, env) {
		return
	}

	run := func() { a.fire(context.Background(), env) }
	if env.Pool == nil {
		go run()
		return
	}
	if !env.Pool.Submit(a.Name, run) {
		env.Logger.Warn("action dropped, worker queue full", "action", a.Name, "event", e.Type.String())
	}
}

func (a *Action) fire(ctx context.Context, env *Env) {
	if !a.IsEnabled() {
		env.Logger.Debug("action triggered while disabled", "action", a.Name)
		return
	}

	a.run.Lock()
	defer a.run.Unlock()

	run := Run{
		ID:          uuid.NewString(),
		Action:      a.Name,
		TriggerKind: a.Trigger.Kind(),
		StartedAt:   env.Now(),
		Status:      RunSucceeded,
	}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, env.ExecutorTimeout)
	defer cancel()

	err := orchestrator.Protect(func() error {
		if a.Condition != nil {
			ok, err := a.Condition.Check(ctx, env)
			if err != nil {
				return fmt.Errorf("checking condition: %w", err)
			}
			if !ok {
				run.Status = RunSkipped
				return nil
			}
		}
		return a.Executor.Execute(ctx, env)
	})
	run.Duration = time.Since(started)

	switch {
	case err != nil:
		run.Status = RunFailed
		run.Error = err.Error()
		env.Logger.Warn("action failed", "action", a.Name, "error", err, "duration", run.Duration)
	case run.Status == RunSkipped:
		env.Logger.Debug("action condition not met", "action", a.Name)
	default:
		env.Logger.Info("action executed", "action", a.Name, "trigger", run.TriggerKind, "duration", run.Duration)
	}

	if env.Runs != nil {
		recordCtx, cancelRecord := context.WithTimeout(context.Background(), env.ExecutorTimeout)
		defer cancelRecord()
		if err := env.Runs.RecordRun(recordCtx, run); err != nil {
			env.Logger.Warn("recording action run failed", "action", a.Name, "error", err)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
