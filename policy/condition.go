package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ConditionFunc is a named predicate evaluated against the request context.
// The argument is the optional `:argument` suffix of the condition
// expression, or empty when absent. A returned error aborts evaluation; it
// is never converted into a deny decision.
type ConditionFunc func(ctx context.Context, req *Request, arg string) (bool, error)

// Registry maps condition names to predicates. The host constructs the
// registry and passes it to the engine; the namespace is open and
// host-extensible.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]ConditionFunc
}

// NewRegistry creates an empty condition registry.
func NewRegistry() *Registry {
	return &Registry{conditions: make(map[string]ConditionFunc)}
}

// Register registers a predicate under the given name, replacing any
// existing registration.
func (r *Registry) Register(name string, fn ConditionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = fn
}

// Lookup returns the predicate registered under name.
func (r *Registry) Lookup(name string) (ConditionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.conditions[name]
	return fn, ok
}

// Names returns the sorted names of all registered predicates.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conditions))
	for name := range r.conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitCondition splits a condition expression on the first `:` into its
// predicate name and optional argument.
func SplitCondition(expr string) (name, arg string) {
	name, arg, _ = strings.Cut(expr, ":")
	return name, arg
}

// matchingConditions filters statements to those whose conditions all hold.
// A statement with no conditions always passes. Conditions are evaluated in
// order and short-circuit on the first failure. An unregistered condition
// name is a fatal configuration error, not a non-match.
func (e *engine) matchingConditions(ctx context.Context, req *Request, statements []Statement) ([]Statement, error) {
	matched := make([]Statement, 0, len(statements))

	for _, s := range statements {
		passed := true
		for _, expr := range s.Conditions {
			ok, err := e.checkCondition(ctx, req, expr)
			if err != nil {
				return nil, err
			}
			if !ok {
				passed = false
				break
			}
		}
		if passed {
			matched = append(matched, s)
		}
	}

	return matched, nil
}

// checkCondition evaluates a single condition expression.
func (e *engine) checkCondition(ctx context.Context, req *Request, expr string) (bool, error) {
	name, arg := SplitCondition(expr)

	fn, ok := e.registry.Lookup(name)
	if !ok {
		return false, NewUnknownConditionError(name)
	}

	passed, err := fn(ctx, req, arg)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	return passed, nil
}
