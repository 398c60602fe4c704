package automation

import (
	"context"

	"github.com/nerrad567/homecore/internal/orchestrator"
)

// System drives actions from the tick loop. It implements orchestrator.System.
//
// Each tick evaluates every tick-driven trigger concurrently, bounded by
// Workers. Event-driven triggers need no tick; they react on the bus.
type System struct {
	registry *Registry
	env      *Env
	workers  int
	logger   Logger
}

// NewSystem creates the action system. workers bounds concurrent trigger
// evaluation; zero means unbounded.
func NewSystem(registry *Registry, env *Env, workers int) *System {
	env = env.withDefaults()
	return &System{
		registry: registry,
		env:      env,
		workers:  workers,
		logger:   env.Logger,
	}
}

// Name implements orchestrator.System.
func (s *System) Name() string { return "actions" }

// Setup implements orchestrator.System. Actions that fail to set up are
// logged and skipped; they do not stop the loop.
func (s *System) Setup(context.Context) error {
	if err := s.registry.Setup(s.env); err != nil {
		s.logger.Warn("some actions could not be set up", "error", err)
	}
	s.logger.Info("actions ready", "count", s.registry.Count())
	return nil
}

// Update implements orchestrator.System.
func (s *System) Update(ctx context.Context) error {
	actions := s.registry.List()
	errs := orchestrator.FanOut(ctx, s.workers, actions, func(ctx context.Context, a *Action) error {
		return a.Update(ctx)
	})
	for i, err := range errs {
		if err != nil {
			s.logger.Error("action update failed", "action", actions[i].Name, "error", err)
		}
	}
	return nil
}

// Stop implements orchestrator.System.
func (s *System) Stop() error {
	s.registry.Stop()
	return nil
}
