package policy

import (
	"encoding/json"
	"net/http"

	"github.com/vyrodovalexey/avaccess/auth"
	"github.com/vyrodovalexey/avaccess/observability"
)

// ActionResolver maps an inbound HTTP request to the action name evaluated
// against statement action clauses. Returning an empty action or an error
// is a configuration error, not a deny.
type ActionResolver func(r *http.Request) (string, error)

// MethodActionResolver resolves the action name to the request method.
// Hosts with named view actions should install a route-aware resolver
// instead.
func MethodActionResolver(r *http.Request) (string, error) {
	return r.Method, nil
}

// HTTPAuthorizer handles authorization for HTTP requests.
type HTTPAuthorizer interface {
	// Authorize authorizes an HTTP request.
	Authorize(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware enforcing the policy.
	Middleware() func(http.Handler) http.Handler
}

// httpAuthorizer implements the HTTPAuthorizer interface.
type httpAuthorizer struct {
	engine   Engine
	provider PrincipalContextProvider
	resolver ActionResolver
	logger   observability.Logger
}

// HTTPAuthorizerOption is a functional option for the HTTP authorizer.
type HTTPAuthorizerOption func(*httpAuthorizer)

// WithHTTPAuthorizerLogger sets the logger.
func WithHTTPAuthorizerLogger(logger observability.Logger) HTTPAuthorizerOption {
	return func(a *httpAuthorizer) {
		a.logger = logger
	}
}

// WithActionResolver sets the action resolver.
func WithActionResolver(resolver ActionResolver) HTTPAuthorizerOption {
	return func(a *httpAuthorizer) {
		a.resolver = resolver
	}
}

// WithPrincipalProvider sets the principal context provider.
func WithPrincipalProvider(provider PrincipalContextProvider) HTTPAuthorizerOption {
	return func(a *httpAuthorizer) {
		a.provider = provider
	}
}

// NewHTTPAuthorizer creates a new HTTP authorizer.
func NewHTTPAuthorizer(engine Engine, opts ...HTTPAuthorizerOption) HTTPAuthorizer {
	a := &httpAuthorizer{
		engine:   engine,
		provider: IdentityProvider{},
		resolver: MethodActionResolver,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Authorize authorizes an HTTP request.
func (a *httpAuthorizer) Authorize(r *http.Request) (*Decision, error) {
	ctx := r.Context()

	// Missing identity means an anonymous requester, not an error.
	identity, _ := auth.IdentityFromContext(ctx)

	principal, err := a.provider.PrincipalContext(ctx, identity)
	if err != nil {
		return nil, err
	}

	action, err := a.resolver(r)
	if err != nil {
		return nil, err
	}
	if action == "" {
		return nil, NewNoActionError()
	}

	req := &Request{
		Principal: principal,
		Action:    action,
		Method:    r.Method,
		Context:   buildRequestContext(r),
	}

	return a.engine.Evaluate(ctx, req)
}

// buildRequestContext builds the request context passed to condition
// predicates.
func buildRequestContext(r *http.Request) map[string]interface{} {
	ctx := make(map[string]interface{})

	ctx["method"] = r.Method
	ctx["path"] = r.URL.Path
	ctx["query"] = r.URL.RawQuery
	ctx["host"] = r.Host
	ctx["remote_addr"] = r.RemoteAddr
	ctx["user_agent"] = r.UserAgent()

	headers := make(map[string]string)
	for key, values := range r.Header {
		if !isSensitiveHeader(key) && len(values) > 0 {
			headers[key] = values[0]
		}
	}
	ctx["headers"] = headers

	return ctx
}

// Middleware returns an HTTP middleware enforcing the policy.
func (a *httpAuthorizer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := a.Authorize(r)
			if err != nil {
				a.handleError(w, r, err)
				return
			}

			if !decision.Allowed {
				a.handleDenied(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleError handles evaluation errors. Configuration errors are server
// faults and must not be reported as a deny.
func (a *httpAuthorizer) handleError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("policy evaluation failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)

	message := "authorization error"
	if IsConfigError(err) {
		message = "access policy misconfigured"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleDenied handles access denied responses.
func (a *httpAuthorizer) handleDenied(w http.ResponseWriter, r *http.Request, decision *Decision) {
	a.logger.Warn("access denied",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("reason", decision.Reason),
		observability.String("statement", decision.Statement),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  "access denied",
		"reason": decision.Reason,
	})
}

// isSensitiveHeader checks if a header must be kept out of the predicate
// context.
func isSensitiveHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Authorization", "Cookie", "Set-Cookie", "X-Api-Key", "X-Auth-Token", "Proxy-Authorization":
		return true
	}
	return false
}

// Ensure httpAuthorizer implements HTTPAuthorizer.
var _ HTTPAuthorizer = (*httpAuthorizer)(nil)
