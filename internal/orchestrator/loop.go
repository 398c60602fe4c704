package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/eventbus"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 3 * time.Second

// Loop drives every registered System from one goroutine.
//
// Systems are updated sequentially in registration order. A tick that
// overruns the interval causes the missed ticks to be skipped rather than
// queued. Errors and panics from one system are logged and never stop the
// loop or the systems after it.
type Loop struct {
	interval time.Duration
	systems  []System
	bus      *eventbus.Bus
	logger   Logger
}

// NewLoop creates a loop. bus may be nil; when set, Start and Stop events
// are fired around the loop's lifetime.
func NewLoop(interval time.Duration, bus *eventbus.Bus, systems ...System) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		interval: interval,
		systems:  systems,
		bus:      bus,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Run sets up all systems, ticks until ctx is cancelled, then stops them.
//
// If a Setup fails the systems already set up are stopped in reverse order
// and the error is returned. Cancellation is a normal shutdown and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for i, sys := range l.systems {
		if err := Protect(func() error { return sys.Setup(ctx) }); err != nil {
			l.stopSystems(l.systems[:i])
			return fmt.Errorf("setting up %s: %w", sys.Name(), err)
		}
		l.logger.Debug("system set up", "system", sys.Name())
	}

	if l.bus != nil {
		l.bus.Fire(nil, eventbus.Start, nil)
	}
	l.logger.Info("tick loop started", "interval", l.interval.String(), "systems", len(l.systems))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			if l.bus != nil {
				l.bus.Fire(nil, eventbus.Stop, nil)
			}
			l.stopSystems(l.systems)
			l.logger.Info("tick loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one Update on every system.
func (l *Loop) Tick(ctx context.Context) {
	start := time.Now()
	for _, sys := range l.systems {
		if ctx.Err() != nil {
			return
		}
		if err := Protect(func() error { return sys.Update(ctx) }); err != nil {
			l.logger.Error("system update failed", "system", sys.Name(), "error", err)
		}
	}
	if elapsed := time.Since(start); elapsed > l.interval {
		l.logger.Warn("tick overran interval", "elapsed", elapsed.String(), "interval", l.interval.String())
	}
}

// stopSystems stops systems in reverse order.
func (l *Loop) stopSystems(systems []System) {
	for i := len(systems) - 1; i >= 0; i-- {
		sys := systems[i]
		if err := Protect(sys.Stop); err != nil {
			l.logger.Error("system stop failed", "system", sys.Name(), "error", err)
		}
	}
}
