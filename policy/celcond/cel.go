// Package celcond provides CEL-backed condition predicates for the policy
// condition registry.
//
// Each compiled expression becomes a policy.ConditionFunc evaluated over
// the request: `subject`, `anonymous`, `groups`, `action`, `method`, the
// optional condition argument `arg`, and the opaque request `context` map.
// An expression must evaluate to a boolean; any other result type is a
// policy configuration error.
package celcond

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/vyrodovalexey/avaccess/observability"
	"github.com/vyrodovalexey/avaccess/policy"
)

// Compiler compiles CEL expressions into condition predicates.
type Compiler struct {
	env    *cel.Env
	logger observability.Logger
}

// CompilerOption is a functional option for the compiler.
type CompilerOption func(*Compiler)

// WithCompilerLogger sets the logger.
func WithCompilerLogger(logger observability.Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// NewCompiler creates a new condition compiler.
func NewCompiler(opts ...CompilerOption) (*Compiler, error) {
	c := &Compiler{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	env, err := cel.NewEnv(
		cel.Variable("subject", cel.StringType),
		cel.Variable("anonymous", cel.BoolType),
		cel.Variable("groups", cel.ListType(cel.StringType)),
		cel.Variable("action", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("arg", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	c.env = env

	return c, nil
}

// Compile compiles a CEL expression into a condition predicate. The name is
// used in error messages only; registration is the caller's choice.
func (c *Compiler) Compile(name, expr string) (policy.ConditionFunc, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &policy.ConfigError{
			Condition: name,
			Reason:    fmt.Sprintf("condition %q: invalid CEL expression: %v", name, issues.Err()),
		}
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition %q: build CEL program: %w", name, err)
	}

	return func(_ context.Context, req *policy.Request, arg string) (bool, error) {
		principal := req.Principal
		if principal == nil {
			principal = policy.AnonymousPrincipal()
		}

		groups := principal.Groups
		if groups == nil {
			groups = []string{}
		}

		reqCtx := req.Context
		if reqCtx == nil {
			reqCtx = map[string]interface{}{}
		}

		result, _, err := program.Eval(map[string]interface{}{
			"subject":   principal.Subject,
			"anonymous": principal.Anonymous,
			"groups":    groups,
			"action":    req.Action,
			"method":    req.Method,
			"arg":       arg,
			"context":   reqCtx,
		})
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", name, err)
		}

		boolResult, ok := result.Value().(bool)
		if !ok {
			return false, policy.NewConditionResultError(name, fmt.Sprintf("%T", result.Value()))
		}
		return boolResult, nil
	}, nil
}

// RegisterAll compiles the named expressions and registers each predicate
// in the registry.
func (c *Compiler) RegisterAll(registry *policy.Registry, expressions map[string]string) error {
	for name, expr := range expressions {
		fn, err := c.Compile(name, expr)
		if err != nil {
			return err
		}
		registry.Register(name, fn)
		c.logger.Debug("registered CEL condition",
			observability.String("condition", name),
		)
	}
	return nil
}
