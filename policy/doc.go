// Package policy implements a declarative, statement-based authorization
// engine in the style of cloud IAM policies.
//
// A policy is an ordered list of statements, each mapping principals and
// actions (plus optional named conditions) to an allow or deny effect.
// Evaluation filters the statements by principal, action, and conditions,
// then resolves the survivors to a single decision: deny when nothing
// matched, deny when any matched statement denies, allow otherwise.
//
// # Features
//
//   - Principal matching with `*`, `authenticated`, `anonymous`,
//     `id:<subject>`, and `group:<name>` patterns
//   - Action matching with `*` and the `<safe_methods>` shorthand for
//     read-only HTTP methods
//   - Host-extensible condition registry with `name:argument` expressions
//   - Deny-overrides-allow, default-deny resolution
//   - Optional decision caching (in-memory or Redis)
//   - Prometheus metrics and OpenTelemetry spans for evaluations
//
// # Usage
//
// Create an engine from a configuration and evaluate requests:
//
//	engine, err := policy.NewEngine(cfg,
//	    policy.WithRegistry(registry),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := engine.Evaluate(ctx, &policy.Request{
//	    Principal: &policy.PrincipalContext{Subject: "5", Groups: []string{"cooks"}},
//	    Action:    "create",
//	    Method:    "POST",
//	})
//
// Misconfigured policies (unknown condition names, unresolvable actions)
// surface as ConfigError values, never as a deny decision.
package policy
