package automation

import (
	"context"
	"time"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/solar"
)

// DefaultExecutorTimeout bounds one executor call.
const DefaultExecutorTimeout = 10 * time.Second

// Logger defines the logging interface used by the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver finds rule targets. device.Registry implements it.
type Resolver interface {
	Resolve(room, device string) (device.Target, error)
}

// SunTimes gives the time of a solar event on a date. solar.Calculator implements it.
type SunTimes interface {
	At(e solar.Event, date time.Time) (time.Time, error)
}

// Submitter runs work off the calling goroutine. orchestrator.Pool implements it.
type Submitter interface {
	Submit(name string, fn func()) bool
}

// RunRecorder persists execution records.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Env is everything actions need from the runtime.
type Env struct {
	Bus      *eventbus.Bus
	Resolver Resolver
	Sun      SunTimes
	Coercer  *coerce.Service
	// Pool runs event-triggered executions. When nil they run inline on
	// the firing goroutine.
	Pool Submitter
	// Runs receives one record per execution attempt. Optional.
	Runs   RunRecorder
	Logger Logger

	Now             func() time.Time
	Location        *time.Location
	ExecutorTimeout time.Duration
}

func (e *Env) withDefaults() *Env {
	out := Env{}
	if e != nil {
		out = *e
	}
	if out.Bus == nil {
		out.Bus = eventbus.New()
	}
	if out.Coercer == nil {
		out.Coercer = coerce.Default
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Location == nil {
		out.Location = time.Local
	}
	if out.ExecutorTimeout <= 0 {
		out.ExecutorTimeout = DefaultExecutorTimeout
	}
	return &out
}

func (e *Env) now() time.Time {
	return e.Now().In(e.Location)
}
