package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/avaccess/auth"
)

func TestParseFullMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		full    string
		service string
		method  string
	}{
		{full: "/menu.DishService/CreateDish", service: "menu.DishService", method: "CreateDish"},
		{full: "menu.DishService/CreateDish", service: "menu.DishService", method: "CreateDish"},
		{full: "/CreateDish", service: "", method: "CreateDish"},
		{full: "", service: "", method: ""},
	}

	for _, tt := range tests {
		service, method := parseFullMethod(tt.full)
		assert.Equal(t, tt.service, service, tt.full)
		assert.Equal(t, tt.method, method, tt.full)
	}
}

func newGRPCEngine(t *testing.T) Engine {
	t.Helper()

	return newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Name: "cooks-create", Principal: StringList{"group:cooks"}, Action: StringList{"CreateDish"}, Effect: EffectAllow},
			{Name: "read-all", Principal: StringList{"authenticated"}, Action: StringList{"GetDish", "ListDishes"}, Effect: EffectAllow},
		},
	})
}

func identityContext(subject string, groups ...string) context.Context {
	return auth.ContextWithIdentity(context.Background(), &auth.Identity{
		Subject: subject,
		Groups:  groups,
	})
}

func TestGRPCAuthorizer_Authorize(t *testing.T) {
	t.Parallel()

	authorizer := NewGRPCAuthorizer(newGRPCEngine(t))

	t.Run("group member allowed", func(t *testing.T) {
		t.Parallel()

		decision, err := authorizer.Authorize(identityContext("5", "cooks"), "/menu.DishService/CreateDish")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, "cooks-create", decision.Statement)
	})

	t.Run("non-member denied", func(t *testing.T) {
		t.Parallel()

		decision, err := authorizer.Authorize(identityContext("6", "waiters"), "/menu.DishService/CreateDish")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("anonymous denied", func(t *testing.T) {
		t.Parallel()

		decision, err := authorizer.Authorize(context.Background(), "/menu.DishService/GetDish")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("empty method is a configuration error", func(t *testing.T) {
		t.Parallel()

		_, err := authorizer.Authorize(context.Background(), "")
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})
}

func TestGRPCAuthorizer_UnaryInterceptor(t *testing.T) {
	t.Parallel()

	authorizer := NewGRPCAuthorizer(newGRPCEngine(t))
	interceptor := authorizer.UnaryInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}

	t.Run("allowed request reaches the handler", func(t *testing.T) {
		t.Parallel()

		resp, err := interceptor(
			identityContext("5", "cooks"),
			nil,
			&grpc.UnaryServerInfo{FullMethod: "/menu.DishService/CreateDish"},
			handler,
		)
		require.NoError(t, err)
		assert.Equal(t, "response", resp)
	})

	t.Run("denied request returns PermissionDenied", func(t *testing.T) {
		t.Parallel()

		_, err := interceptor(
			identityContext("6", "waiters"),
			nil,
			&grpc.UnaryServerInfo{FullMethod: "/menu.DishService/CreateDish"},
			handler,
		)
		require.Error(t, err)

		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, codes.PermissionDenied, st.Code())
	})

	t.Run("configuration error returns Internal", func(t *testing.T) {
		t.Parallel()

		engine := newTestEngine(t, &Config{
			Statements: []RawStatement{
				{Principal: StringList{"*"}, Action: StringList{"*"}, Condition: StringList{"missing"}, Effect: EffectAllow},
			},
		})
		broken := NewGRPCAuthorizer(engine).UnaryInterceptor()

		_, err := broken(
			context.Background(),
			nil,
			&grpc.UnaryServerInfo{FullMethod: "/menu.DishService/GetDish"},
			handler,
		)
		require.Error(t, err)

		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, codes.Internal, st.Code())
		assert.Contains(t, st.Message(), "misconfigured")
	})
}

func TestGRPCAuthorizer_SafeMethodsNeverMatches(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"*"}, Action: StringList{"<safe_methods>"}, Effect: EffectAllow},
		},
	})
	authorizer := NewGRPCAuthorizer(engine)

	decision, err := authorizer.Authorize(identityContext("5"), "/menu.DishService/GetDish")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestBuildGRPCContext(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-request-id", "abc123",
		"authorization", "Bearer secret",
	))

	reqCtx := buildGRPCContext(ctx, "menu.DishService", "CreateDish")

	assert.Equal(t, "menu.DishService", reqCtx["service"])
	assert.Equal(t, "CreateDish", reqCtx["method"])

	md, ok := reqCtx["metadata"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "abc123", md["x-request-id"])
	assert.NotContains(t, md, "authorization")
}
