package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/device"
)

// Executor is the effect of an action. The set of executors is closed.
type Executor interface {
	// Kind is the type tag used when encoding the executor.
	Kind() string
	// Execute performs the effect. Errors describe configuration or
	// driver failures; callers log them and carry on.
	Execute(ctx context.Context, env *Env) error
	executor()
}

// CallExecutor invokes a method on a room or device.
//
// Args is a comma-separated list of literals coerced positionally to the
// method's parameter types, e.g. "Mode, 30" or "(120, 80)".
type CallExecutor struct {
	Target string `json:"target"`
	Method string `json:"method"`
	Args   string `json:"args,omitempty"`
}

// Kind implements Executor.
func (*CallExecutor) Kind() string { return "call" }

func (*CallExecutor) executor() {}

// Execute implements Executor.
func (c *CallExecutor) Execute(ctx context.Context, env *Env) error {
	target, err := resolveTarget(env, c.Target)
	if err != nil {
		return err
	}
	name := memberName(c.Method)
	method, ok := target.Capabilities().Method(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", device.ErrUnknownMethod, target.TargetName(), name)
	}

	literals := splitArgs(c.Args)
	args := make([]any, len(literals))
	for i, lit := range literals {
		t := coerce.Any
		if i < len(method.Params) {
			t = method.Params[i]
		}
		args[i] = env.Coercer.Coerce(lit, t)
	}
	return target.Capabilities().Invoke(ctx, name, args)
}

// splitArgs splits on commas outside parentheses, so pair literals stay whole.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// SetExecutor assigns a property on a room or device.
type SetExecutor struct {
	Target   string `json:"target"`
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Kind implements Executor.
func (*SetExecutor) Kind() string { return "set" }

func (*SetExecutor) executor() {}

// Execute implements Executor.
func (s *SetExecutor) Execute(ctx context.Context, env *Env) error {
	target, err := resolveTarget(env, s.Target)
	if err != nil {
		return err
	}
	name := memberName(s.Property)
	prop, ok := target.Capabilities().Property(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", device.ErrUnknownProperty, target.TargetName(), name)
	}
	return target.Capabilities().Assign(ctx, name, env.Coercer.Coerce(s.Value, prop.Type))
}
