package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// ErrPanic wraps a recovered panic from a system, device or action.
var ErrPanic = errors.New("orchestrator: recovered panic")

// System is a unit driven by the tick loop.
//
// Setup runs once before the first tick, Update on every tick, Stop once on
// shutdown. Update must respect ctx and should bound its own outbound calls.
type System interface {
	Name() string
	Setup(ctx context.Context) error
	Update(ctx context.Context) error
	Stop() error
}

// Logger is the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Protect runs fn and converts a panic into an ErrPanic error.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
