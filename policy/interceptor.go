package policy

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/avaccess/auth"
	"github.com/vyrodovalexey/avaccess/observability"
)

// GRPCAuthorizer handles authorization for gRPC requests.
type GRPCAuthorizer interface {
	// Authorize authorizes a gRPC request.
	Authorize(ctx context.Context, fullMethod string) (*Decision, error)

	// UnaryInterceptor returns a unary server interceptor enforcing the
	// policy.
	UnaryInterceptor() grpc.UnaryServerInterceptor

	// StreamInterceptor returns a stream server interceptor enforcing the
	// policy.
	StreamInterceptor() grpc.StreamServerInterceptor
}

// grpcAuthorizer implements the GRPCAuthorizer interface.
type grpcAuthorizer struct {
	engine   Engine
	provider PrincipalContextProvider
	logger   observability.Logger
}

// GRPCAuthorizerOption is a functional option for the gRPC authorizer.
type GRPCAuthorizerOption func(*grpcAuthorizer)

// WithGRPCAuthorizerLogger sets the logger.
func WithGRPCAuthorizerLogger(logger observability.Logger) GRPCAuthorizerOption {
	return func(a *grpcAuthorizer) {
		a.logger = logger
	}
}

// WithGRPCPrincipalProvider sets the principal context provider.
func WithGRPCPrincipalProvider(provider PrincipalContextProvider) GRPCAuthorizerOption {
	return func(a *grpcAuthorizer) {
		a.provider = provider
	}
}

// NewGRPCAuthorizer creates a new gRPC authorizer.
func NewGRPCAuthorizer(engine Engine, opts ...GRPCAuthorizerOption) GRPCAuthorizer {
	a := &grpcAuthorizer{
		engine:   engine,
		provider: IdentityProvider{},
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Authorize authorizes a gRPC request. The action name is the method part
// of the full method name; the safe-methods shorthand never matches gRPC
// requests.
func (a *grpcAuthorizer) Authorize(ctx context.Context, fullMethod string) (*Decision, error) {
	identity, _ := auth.IdentityFromContext(ctx)

	principal, err := a.provider.PrincipalContext(ctx, identity)
	if err != nil {
		return nil, err
	}

	service, method := parseFullMethod(fullMethod)
	if method == "" {
		return nil, NewNoActionError()
	}

	req := &Request{
		Principal: principal,
		Action:    method,
		Context:   buildGRPCContext(ctx, service, method),
	}

	return a.engine.Evaluate(ctx, req)
}

// buildGRPCContext builds the request context passed to condition
// predicates.
func buildGRPCContext(ctx context.Context, service, method string) map[string]interface{} {
	reqCtx := make(map[string]interface{})

	reqCtx["service"] = service
	reqCtx["method"] = method

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		headers := make(map[string]string)
		for key, values := range md {
			if !isSensitiveMetadata(key) && len(values) > 0 {
				headers[key] = values[0]
			}
		}
		reqCtx["metadata"] = headers
	}

	if p, ok := peer.FromContext(ctx); ok {
		reqCtx["peer_addr"] = p.Addr.String()
	}

	return reqCtx
}

// UnaryInterceptor returns a unary server interceptor enforcing the policy.
func (a *grpcAuthorizer) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := a.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a stream server interceptor enforcing the
// policy.
func (a *grpcAuthorizer) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := a.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// check evaluates the policy and converts the outcome to a gRPC status.
func (a *grpcAuthorizer) check(ctx context.Context, fullMethod string) error {
	decision, err := a.Authorize(ctx, fullMethod)
	if err != nil {
		a.logger.Error("policy evaluation failed",
			observability.String("method", fullMethod),
			observability.Error(err),
		)
		if IsConfigError(err) {
			return status.Error(codes.Internal, "access policy misconfigured")
		}
		return status.Error(codes.Internal, "authorization error")
	}

	if !decision.Allowed {
		a.logger.Warn("access denied",
			observability.String("method", fullMethod),
			observability.String("reason", decision.Reason),
			observability.String("statement", decision.Statement),
		)
		return status.Error(codes.PermissionDenied, "access denied")
	}

	return nil
}

// parseFullMethod splits a gRPC full method name (/package.Service/Method)
// into service and method.
func parseFullMethod(fullMethod string) (service, method string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(trimmed, "/")
	if !ok {
		return "", trimmed
	}
	return service, method
}

// isSensitiveMetadata checks if a metadata key must be kept out of the
// predicate context.
func isSensitiveMetadata(key string) bool {
	switch strings.ToLower(key) {
	case "authorization", "cookie", "x-api-key", "x-auth-token":
		return true
	}
	return false
}

// Ensure grpcAuthorizer implements GRPCAuthorizer.
var _ GRPCAuthorizer = (*grpcAuthorizer)(nil)
