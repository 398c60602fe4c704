package automation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/eventbus"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu      sync.Mutex
	actions map[string]*Action
	runs    []Run
	saves   int
	saveErr error
	listErr error

	// saveDelay widens the window between the duplicate check and the insert.
	saveDelay time.Duration
}

func NewMockRepository() *MockRepository {
	return &MockRepository{actions: make(map[string]*Action)}
}

func (m *MockRepository) List(context.Context) ([]*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*Action, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockRepository) Save(_ context.Context, a *Action) error {
	time.Sleep(m.saveDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.actions[a.Name] = a
	m.saves++
	return nil
}

func (m *MockRepository) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[name]; !ok {
		return ErrActionNotFound
	}
	delete(m.actions, name)
	return nil
}

func (m *MockRepository) RecordRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MockRepository) ListRuns(_ context.Context, action string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.runs[i].Action == action {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

func TestRegistry_Add(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	a := sampleAction("Hall Light")
	if err := reg.Add(ctx, a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if a.Slug != "hall-light" {
		t.Errorf("Slug = %q, want hall-light", a.Slug)
	}
	if _, ok := repo.actions["Hall Light"]; !ok {
		t.Error("action was not persisted")
	}

	got, err := reg.Get("Hall Light")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != a {
		t.Error("Get() should return the live action")
	}

	if err := reg.Add(ctx, sampleAction("Hall Light")); !errors.Is(err, ErrActionExists) {
		t.Errorf("Add(duplicate) error = %v, want ErrActionExists", err)
	}
	// "Hall  Light" slugs to the same value.
	if err := reg.Add(ctx, sampleAction("Hall  Light")); !errors.Is(err, ErrActionExists) {
		t.Errorf("Add(duplicate slug) error = %v, want ErrActionExists", err)
	}
	if err := reg.Add(ctx, &Action{Name: "broken"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Add(invalid) error = %v, want ErrInvalidAction", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistry_AddPersistFailure(t *testing.T) {
	repo := NewMockRepository()
	repo.saveErr = errors.New("disk full")
	reg := NewRegistry(repo)

	if err := reg.Add(context.Background(), sampleAction("Hall Light")); err == nil {
		t.Fatal("Add() should fail when the repository fails")
	}
	if reg.Count() != 0 {
		t.Error("failed add must not be cached")
	}
}

func TestRegistry_ConcurrentAddSameName(t *testing.T) {
	repo := NewMockRepository()
	repo.saveDelay = 20 * time.Millisecond
	reg := NewRegistry(repo)
	env := testEnv(nil, &testClock{now: monday})
	if err := reg.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = reg.Add(context.Background(), sampleAction("Dup"))
		}()
	}
	wg.Wait()

	var added, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			added++
		case errors.Is(err, ErrActionExists):
			rejected++
		default:
			t.Errorf("Add() unexpected error = %v", err)
		}
	}
	if added != 1 || rejected != 1 {
		t.Fatalf("added=%d rejected=%d, want 1 and 1 (errors %v)", added, rejected, errs)
	}
	if env.Bus.Len() != 1 {
		t.Errorf("bus subscribers = %d, want 1", env.Bus.Len())
	}

	reg.Stop()
	if env.Bus.Len() != 0 {
		t.Errorf("bus subscribers after Stop = %d, want 0", env.Bus.Len())
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	if _, err := reg.Get("missing"); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Get() error = %v, want ErrActionNotFound", err)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		if err := reg.Add(ctx, sampleAction(name)); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	list := reg.List()
	if len(list) != 3 || list[0].Name != "Alpha" || list[1].Name != "Mid" || list[2].Name != "Zeta" {
		t.Errorf("List() order wrong: %v", []string{list[0].Name, list[1].Name, list[2].Name})
	}
}

func TestRegistry_SetupSubscribesAndStop(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()
	if err := reg.Add(ctx, sampleAction("Hall Light")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	env := testEnv(nil, &testClock{now: monday})
	if err := reg.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if env.Bus.Len() != 1 {
		t.Errorf("bus subscribers = %d, want 1", env.Bus.Len())
	}

	// Actions added after Setup are set up immediately.
	late := sampleAction("Porch Light")
	if err := reg.Add(ctx, late); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if env.Bus.Len() != 2 {
		t.Errorf("bus subscribers = %d, want 2", env.Bus.Len())
	}

	if err := reg.Remove(ctx, "Porch Light"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if env.Bus.Len() != 1 {
		t.Errorf("bus subscribers after Remove = %d, want 1", env.Bus.Len())
	}

	reg.Stop()
	if env.Bus.Len() != 0 {
		t.Errorf("bus subscribers after Stop = %d, want 0", env.Bus.Len())
	}
}

func TestRegistry_RemoveNotFound(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	if err := reg.Remove(context.Background(), "missing"); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Remove() error = %v, want ErrActionNotFound", err)
	}
}

func TestRegistry_SetEnabledPersists(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()
	if err := reg.Add(ctx, sampleAction("Hall Light")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	saves := repo.saves

	if err := reg.SetEnabled(ctx, "Hall Light", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	a, _ := reg.Get("Hall Light")
	if a.IsEnabled() {
		t.Error("action should be disabled")
	}
	if repo.saves != saves+1 {
		t.Errorf("saves = %d, want %d", repo.saves, saves+1)
	}
}

func TestRegistry_RefreshCacheReplacesActions(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()
	env := testEnv(nil, &testClock{now: monday})
	if err := reg.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	stored := sampleAction("Hall Light")
	stored.Slug = "hall-light"
	repo.actions[stored.Name] = stored
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if reg.Count() != 1 || env.Bus.Len() != 1 {
		t.Fatalf("Count() = %d, subscribers = %d; want 1, 1", reg.Count(), env.Bus.Len())
	}

	// A second refresh stops the old instance before setting up the new one.
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if env.Bus.Len() != 1 {
		t.Errorf("subscribers after second refresh = %d, want 1", env.Bus.Len())
	}

	repo.listErr = errors.New("database locked")
	if err := reg.RefreshCache(ctx); err == nil {
		t.Error("RefreshCache() should report repository errors")
	}
	if reg.Count() != 1 {
		t.Error("a failed refresh must keep the cached actions")
	}
}

func TestRegistry_SaveAllCapturesDeadlines(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()
	clock := &testClock{now: monday.Add(8*time.Hour + 7*time.Minute)}

	a := &Action{Name: "poll", Enabled: true, Trigger: &TimeTrigger{Interval: Duration(time.Hour)}, Executor: &CallExecutor{Target: "Hall", Method: "TurnOn"}}
	if err := reg.Add(ctx, a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := reg.Setup(testEnv(nil, clock)); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	saves := repo.saves
	if err := reg.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if repo.saves != saves+1 {
		t.Errorf("saves = %d, want %d", repo.saves, saves+1)
	}
	stored := repo.actions["poll"].Trigger.(*TimeTrigger)
	if !stored.Deadline().Equal(monday.Add(9 * time.Hour)) {
		t.Errorf("stored deadline = %v", stored.Deadline())
	}
}

func TestRegistry_Runs(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	var executed atomic.Int32
	a := &Action{Name: "wake", Enabled: true, Trigger: &EventTrigger{Event: eventbus.Start}, Executor: countingExecutor(&executed)}
	if err := reg.Add(ctx, a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	env := testEnv(nil, &testClock{now: monday})
	env.Runs = repo
	env.Pool = inlinePool{}
	if err := reg.Setup(env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer reg.Stop()

	env.Bus.Fire(nil, eventbus.Start, nil)
	env.Bus.Fire(nil, eventbus.Start, nil)

	runs, err := reg.Runs(ctx, "wake", 10)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 || executed.Load() != 2 {
		t.Errorf("runs = %d, executed = %d; want 2, 2", len(runs), executed.Load())
	}
}
