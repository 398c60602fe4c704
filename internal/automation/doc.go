// Package automation provides the action engine for homecore.
//
// An Action pairs a Trigger with an Executor and an optional
// PropertyCondition guard.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                  System (system.go)                    │
//	│  tick ──▶ FanOut ──▶ Action.Update ──▶ schedule / time │
//	│                                                        │
//	│  bus ──▶ Action.handleEvent ──▶ Pool ──▶ Action.fire   │
//	│  (event / sensor triggers, matched inline)             │
//	│        │                                               │
//	│        ▼                                               │
//	│  ┌──────────────┐    ┌──────────────┐                  │
//	│  │   Registry   │───▶│  Repository  │ actions,         │
//	│  │(registry.go) │    │(repository.go)│ action_runs     │
//	│  └──────────────┘    └──────────────┘                  │
//	└────────────────────────────────────────────────────────┘
//
// # Triggers
//
//   - EventTrigger: any bus event matching type, source device, room and payload
//   - SensorTrigger: a SensorDataAdded reading crossing into a Condition
//   - ScheduleTrigger: a wall-clock or solar minute on selected days
//   - TimeTrigger: a fixed interval with a self-correcting deadline
//
// # Executors
//
//   - CallExecutor: invoke a method, arguments coerced to its parameter types
//   - SetExecutor: assign a property, value coerced to its type
//
// Targets are written "Room[.Device] (Type)". The type annotation is for
// editors and is ignored; a device name that does not resolve targets the room.
//
// # Thread Safety
//
// Registry and Action are safe for concurrent use. At most one execution of
// a given Action runs at a time.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	registry := automation.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	sys := automation.NewSystem(registry, &automation.Env{
//	    Bus:      bus,
//	    Resolver: devices,
//	    Sun:      solar.NewCalculator(lat, lon, loc),
//	    Pool:     pool,
//	    Runs:     repo,
//	}, 8)
package automation
