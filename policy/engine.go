package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaccess/observability"
)

// policyTracer is the OTEL tracer used for policy evaluation.
var policyTracer = otel.Tracer("avaccess/policy")

// Request represents one authorization request.
type Request struct {
	// Principal is the requester context. Nil is treated as anonymous.
	Principal *PrincipalContext

	// Action is the invoked action name.
	Action string

	// Method is the underlying request method, used only by the
	// <safe_methods> action shorthand.
	Method string

	// Context carries additional request context. It is opaque to the
	// engine and passed through to condition predicates.
	Context map[string]interface{}
}

// principal returns the request principal, defaulting to anonymous.
func (r *Request) principal() *PrincipalContext {
	if r.Principal == nil {
		return AnonymousPrincipal()
	}
	return r.Principal
}

// Decision represents an authorization decision.
type Decision struct {
	// Allowed indicates if the request is allowed.
	Allowed bool

	// Reason is the reason for the decision.
	Reason string

	// Statement is the name of the deciding statement, if it was named.
	Statement string

	// Cached indicates if the decision came from the cache.
	Cached bool
}

// Engine is the statement evaluation engine. Evaluation is a pure function
// of the statements, the request, and the condition registry; concurrent
// evaluations need no external locking.
type Engine interface {
	// Evaluate evaluates the engine's configured statements for a request.
	Evaluate(ctx context.Context, req *Request) (*Decision, error)

	// EvaluateStatements evaluates a caller-supplied statement list for a
	// request, bypassing the engine's configured statements.
	EvaluateStatements(ctx context.Context, statements []Statement, req *Request) (*Decision, error)

	// SetStatements replaces the engine's configured statements.
	SetStatements(statements []Statement)

	// GetStatements returns the engine's configured statements.
	GetStatements() []Statement

	// Close closes the engine.
	Close() error
}

// engine implements the Engine interface.
type engine struct {
	registry *Registry
	logger   observability.Logger
	metrics  *Metrics
	cache    DecisionCache

	mu         sync.RWMutex
	statements []Statement
}

// EngineOption is a functional option for the engine.
type EngineOption func(*engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *engine) {
		e.metrics = metrics
	}
}

// WithRegistry sets the condition registry.
func WithRegistry(registry *Registry) EngineOption {
	return func(e *engine) {
		e.registry = registry
	}
}

// WithDecisionCache sets the decision cache.
func WithDecisionCache(cache DecisionCache) EngineOption {
	return func(e *engine) {
		e.cache = cache
	}
}

// NewEngine creates a new policy engine from the given configuration.
func NewEngine(config *Config, opts ...EngineOption) (Engine, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics("avaccess")
	}

	e.statements = NormalizeStatements(config.Statements)
	e.metrics.SetStatementCount(len(e.statements))

	if e.cache == nil {
		e.initializeCache(config)
	}

	return e, nil
}

// initializeCache initializes the decision cache from configuration.
func (e *engine) initializeCache(config *Config) {
	if config.Cache == nil || !config.Cache.Enabled {
		e.cache = NewNoopDecisionCache()
		return
	}

	ttl := 5 * time.Minute
	if config.Cache.TTL > 0 {
		ttl = config.Cache.TTL
	}

	if config.Cache.Type == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Cache.Redis.Addr,
			Password: config.Cache.Redis.Password,
			DB:       config.Cache.Redis.DB,
		})
		redisOpts := []RedisCacheOption{
			WithRedisCacheLogger(e.logger),
			WithRedisCacheMetrics(e.metrics),
		}
		if config.Cache.Redis.KeyPrefix != "" {
			redisOpts = append(redisOpts, WithRedisKeyPrefix(config.Cache.Redis.KeyPrefix))
		}
		e.cache = NewRedisDecisionCache(client, ttl, redisOpts...)
		return
	}

	maxSize := 10000
	if config.Cache.MaxSize > 0 {
		maxSize = config.Cache.MaxSize
	}
	e.cache = NewMemoryDecisionCache(ttl, maxSize,
		WithMemoryCacheLogger(e.logger),
		WithMemoryCacheMetrics(e.metrics),
	)
}

// Evaluate evaluates the engine's configured statements for a request.
func (e *engine) Evaluate(ctx context.Context, req *Request) (*Decision, error) {
	e.mu.RLock()
	statements := e.statements
	e.mu.RUnlock()

	// Conditioned statements depend on live request context; only
	// condition-free policies are safe to cache.
	if e.cacheable(statements) {
		principal := req.principal()
		key := &CacheKey{
			Subject:   principal.Subject,
			Anonymous: principal.Anonymous,
			Action:    req.Action,
			Method:    req.Method,
			Groups:    principal.Groups,
		}

		if cached, ok := e.cache.Get(ctx, key); ok {
			return &Decision{
				Allowed:   cached.Allowed,
				Reason:    cached.Reason,
				Statement: cached.Statement,
				Cached:    true,
			}, nil
		}

		decision, err := e.EvaluateStatements(ctx, statements, req)
		if err != nil {
			return nil, err
		}

		e.cache.Set(ctx, key, &CachedDecision{
			Allowed:   decision.Allowed,
			Reason:    decision.Reason,
			Statement: decision.Statement,
		})
		return decision, nil
	}

	return e.EvaluateStatements(ctx, statements, req)
}

// EvaluateStatements evaluates a statement list for a request.
func (e *engine) EvaluateStatements(ctx context.Context, statements []Statement, req *Request) (*Decision, error) {
	start := time.Now()

	ctx, span := policyTracer.Start(ctx, "policy.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("policy.action", req.Action),
			attribute.String("policy.method", req.Method),
			attribute.Int("policy.statements", len(statements)),
		),
	)
	defer span.End()

	// Empty policy means no access; skip the pipeline entirely.
	if len(statements) == 0 {
		decision := &Decision{Allowed: false, Reason: "empty statement list"}
		e.record(span, req, decision, start)
		return decision, nil
	}

	principal := req.principal()

	matched := matchingPrincipal(principal, statements)
	matched = matchingAction(req.Action, req.Method, matched)

	matched, err := e.matchingConditions(ctx, req, matched)
	if err != nil {
		span.SetAttributes(attribute.String("policy.error", err.Error()))
		e.metrics.RecordEvaluation("error", time.Since(start))
		return nil, err
	}

	decision := resolve(matched)
	e.record(span, req, decision, start)
	return decision, nil
}

// resolve combines the matched statements into a final decision.
func resolve(matched []Statement) *Decision {
	if len(matched) == 0 {
		return &Decision{Allowed: false, Reason: "no matching statement"}
	}

	for _, s := range matched {
		if s.Effect != EffectAllow {
			return &Decision{Allowed: false, Reason: "explicit deny", Statement: s.Name}
		}
	}

	return &Decision{Allowed: true, Reason: "matched allow statement", Statement: matched[0].Name}
}

// record records the decision in the span, metrics, and log.
func (e *engine) record(span trace.Span, req *Request, decision *Decision, start time.Time) {
	result := "denied"
	if decision.Allowed {
		result = "allowed"
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.String("policy.reason", decision.Reason),
	)
	e.metrics.RecordEvaluation(result, time.Since(start))

	principal := req.principal()
	e.logger.Debug("policy decision",
		observability.String("subject", principal.Subject),
		observability.Bool("anonymous", principal.Anonymous),
		observability.String("action", req.Action),
		observability.Bool("allowed", decision.Allowed),
		observability.String("reason", decision.Reason),
		observability.String("statement", decision.Statement),
	)
}

// cacheable reports whether decisions over the statements can be cached.
func (e *engine) cacheable(statements []Statement) bool {
	if _, ok := e.cache.(*noopDecisionCache); ok || e.cache == nil {
		return false
	}
	for _, s := range statements {
		if len(s.Conditions) > 0 {
			return false
		}
	}
	return true
}

// SetStatements replaces the engine's configured statements and clears the
// decision cache.
func (e *engine) SetStatements(statements []Statement) {
	e.mu.Lock()
	e.statements = statements
	e.mu.Unlock()

	e.metrics.SetStatementCount(len(statements))
	e.cache.Clear(context.Background())
}

// GetStatements returns a copy of the engine's configured statements.
func (e *engine) GetStatements() []Statement {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Statement, len(e.statements))
	copy(result, e.statements)
	return result
}

// Close closes the engine.
func (e *engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// Ensure engine implements Engine.
var _ Engine = (*engine)(nil)
