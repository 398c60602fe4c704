// Package calibration evaluates per-channel sensor calibration expressions.
//
// An expression is a Lua expression over the raw reading x, for example
// "x * 1.8 + 32" or "math.floor(x / 10) / 100". Only the base and math
// libraries are loaded.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 100 * time.Millisecond

var (
	// ErrCompile is returned when an expression does not parse.
	ErrCompile = errors.New("calibration: invalid expression")

	// ErrNotNumeric is returned when an expression yields a non-number.
	ErrNotNumeric = errors.New("calibration: result is not a number")
)

// Evaluator compiles and runs calibration expressions.
//
// Compiled expressions are cached by source text. A single Lua VM serves all
// callers, so evaluations are serialised.
type Evaluator struct {
	mu       sync.Mutex
	L        *lua.LState
	compiled map[string]*lua.LFunction
	timeout  time.Duration
}

// New creates an Evaluator with its own Lua state.
func New() (*Evaluator, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("opening lua %s library: %w", lib.name, err)
		}
	}
	return &Evaluator{
		L:        L,
		compiled: make(map[string]*lua.LFunction),
		timeout:  DefaultTimeout,
	}, nil
}

// SetTimeout changes the per-evaluation deadline.
func (e *Evaluator) SetTimeout(d time.Duration) {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// Compile checks that expr parses, caching the result.
func (e *Evaluator) Compile(expr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.compile(expr)
	return err
}

func (e *Evaluator) compile(expr string) (*lua.LFunction, error) {
	if fn, ok := e.compiled[expr]; ok {
		return fn, nil
	}
	src := strings.TrimSpace(expr)
	if !strings.HasPrefix(src, "return ") {
		src = "return " + src
	}
	fn, err := e.L.LoadString(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCompile, expr, err)
	}
	e.compiled[expr] = fn
	return fn, nil
}

// Eval evaluates expr with x bound to the raw value.
func (e *Evaluator) Eval(expr string, x float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, err := e.compile(expr)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	e.L.SetGlobal("x", lua.LNumber(x))
	e.L.Push(fn)
	if err := e.L.PCall(0, 1, nil); err != nil {
		return 0, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	result := e.L.Get(-1)
	e.L.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: %q returned %s", ErrNotNumeric, expr, result.Type())
	}
	return float64(n), nil
}

// Close releases the Lua state.
func (e *Evaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
}
