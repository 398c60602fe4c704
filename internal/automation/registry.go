package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
)

// Registry provides action management with caching and thread safety.
// It wraps a Repository and keeps the live actions in memory.
//
// Unlike plain records, actions carry runtime state (trigger latches,
// deadlines, bus subscriptions), so the registry hands out the live
// instances rather than copies.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	addMu   sync.Mutex // serialises Add so the uniqueness check covers Save
	mu      sync.RWMutex
	actions map[string]*Action
	env     *Env
	logger  Logger
}

// NewRegistry creates a new action registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		actions: make(map[string]*Action),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache loads every stored action. Previously cached actions are
// stopped and replaced. Loaded actions are set up only if Setup has already
// run.
func (r *Registry) RefreshCache(ctx context.Context) error {
	actions, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}

	r.mu.Lock()
	old := r.actions
	r.actions = make(map[string]*Action, len(actions))
	for _, a := range actions {
		r.actions[a.Name] = a
	}
	env := r.env
	r.mu.Unlock()

	for _, a := range old {
		a.Stop()
	}
	r.logger.Info("action cache refreshed", "count", len(actions))
	if env != nil {
		return r.setupAll(env)
	}
	return nil
}

// Setup binds every cached action, and every action added later, to env.
// Actions that fail to set up stay cached but inert; their errors are
// returned together.
func (r *Registry) Setup(env *Env) error {
	env = env.withDefaults()
	r.mu.Lock()
	r.env = env
	r.mu.Unlock()
	return r.setupAll(env)
}

func (r *Registry) setupAll(env *Env) error {
	var errs []error
	for _, a := range r.List() {
		if err := a.Setup(env); err != nil {
			r.logger.Warn("action setup failed", "action", a.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every action.
func (r *Registry) Stop() {
	for _, a := range r.List() {
		a.Stop()
	}
}

// Get returns the live action with the given name.
func (r *Registry) Get(name string) (*Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return a, nil
}

// List returns every action sorted by name.
func (r *Registry) List() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(sortedKeys(r.actions), func(name string, _ int) *Action { return r.actions[name] })
}

// Count returns the number of cached actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Add validates, persists and caches a new action, setting it up when the
// registry is already running.
func (r *Registry) Add(ctx context.Context, a *Action) error {
	if a.Slug == "" {
		a.Slug = slug.Make(a.Name)
	}
	if err := a.Validate(); err != nil {
		return err
	}

	r.addMu.Lock()
	defer r.addMu.Unlock()

	r.mu.Lock()
	if _, exists := r.actions[a.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActionExists, a.Name)
	}
	for _, other := range r.actions {
		if other.Slug == a.Slug {
			r.mu.Unlock()
			return fmt.Errorf("%w: slug %s is used by %s", ErrActionExists, a.Slug, other.Name)
		}
	}
	r.mu.Unlock()

	if err := r.repo.Save(ctx, a); err != nil {
		return err
	}

	r.mu.Lock()
	r.actions[a.Name] = a
	env := r.env
	r.mu.Unlock()

	r.logger.Info("action added", "action", a.Name, "trigger", a.Trigger.Kind(), "executor", a.Executor.Kind())
	if env != nil {
		return a.Setup(env)
	}
	return nil
}

// Remove stops and deletes an action.
func (r *Registry) Remove(ctx context.Context, name string) error {
	a, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.actions, name)
	r.mu.Unlock()

	a.Stop()
	r.logger.Info("action removed", "action", name)
	return nil
}

// SetEnabled enables or disables an action and persists the change.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	a, err := r.Get(name)
	if err != nil {
		return err
	}
	a.SetEnabled(enabled)
	if err := r.repo.Save(ctx, a); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	r.logger.Info("action enabled changed", "action", name, "enabled", enabled)
	return nil
}

// SaveAll persists every action, capturing runtime fields such as time
// trigger deadlines.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	for _, a := range r.List() {
		if err := r.repo.Save(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("saving %s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Runs returns the most recent runs of an action, newest first.
func (r *Registry) Runs(ctx context.Context, name string, limit int) ([]Run, error) {
	return r.repo.ListRuns(ctx, name, limit)
}
