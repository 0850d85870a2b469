package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, config *Config, opts ...EngineOption) Engine {
	t.Helper()

	eng, err := NewEngine(config, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	return eng
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := NewEngine(nil)
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		_, err := NewEngine(&Config{
			Statements: []RawStatement{{Action: StringList{"create"}, Effect: EffectAllow}},
		})
		assert.Error(t, err)
	})

	t.Run("statements are normalized", func(t *testing.T) {
		t.Parallel()

		eng := newTestEngine(t, &Config{
			Statements: []RawStatement{
				{Principal: StringList{"*"}, Action: StringList{"list"}, Effect: EffectAllow},
			},
		})

		statements := eng.GetStatements()
		require.Len(t, statements, 1)
		assert.NotNil(t, statements[0].Conditions)
	})
}

func TestEngine_Evaluate_DefaultDeny(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{})

	decision, err := eng.Evaluate(context.Background(), &Request{Action: "create"})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "empty statement list", decision.Reason)
}

func TestEngine_Evaluate_NoMatch(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"id:1"}, Action: StringList{"create"}, Effect: EffectAllow},
		},
	})

	decision, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "2"},
		Action:    "create",
	})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "no matching statement", decision.Reason)
}

func TestEngine_Evaluate_DenyOverridesAllow(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Name: "allow-all", Principal: StringList{"*"}, Action: StringList{"*"}, Effect: EffectAllow},
			{Name: "block-five", Principal: StringList{"id:5"}, Action: StringList{"*"}, Effect: EffectDeny},
		},
	})

	denied, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "5"},
		Action:    "create",
	})
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, "explicit deny", denied.Reason)
	assert.Equal(t, "block-five", denied.Statement)

	allowed, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "6"},
		Action:    "create",
	})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, "allow-all", allowed.Statement)
}

func TestEngine_Evaluate_NilPrincipalIsAnonymous(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"anonymous"}, Action: StringList{"list"}, Effect: EffectAllow},
		},
	})

	decision, err := eng.Evaluate(context.Background(), &Request{Action: "list"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_Evaluate_SafeMethodsGroup(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"group:cooks"}, Action: StringList{"<safe_methods>"}, Effect: EffectAllow},
		},
	})

	member, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "5", Groups: []string{"cooks"}},
		Action:    "retrieve",
		Method:    "GET",
	})
	require.NoError(t, err)
	assert.True(t, member.Allowed)

	nonMember, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "6", Groups: []string{"waiters"}},
		Action:    "retrieve",
		Method:    "GET",
	})
	require.NoError(t, err)
	assert.False(t, nonMember.Allowed)

	unsafe, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "5", Groups: []string{"cooks"}},
		Action:    "destroy",
		Method:    "DELETE",
	})
	require.NoError(t, err)
	assert.False(t, unsafe.Allowed)
}

func TestEngine_Evaluate_Conditions(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("is_owner", func(_ context.Context, req *Request, _ string) (bool, error) {
		owner, _ := req.Context["owner"].(string)
		return owner == req.Principal.Subject, nil
	})

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{
				Principal: StringList{"authenticated"},
				Action:    StringList{"update"},
				Condition: StringList{"is_owner"},
				Effect:    EffectAllow,
			},
		},
	}, WithRegistry(registry))

	owner, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "5"},
		Action:    "update",
		Context:   map[string]interface{}{"owner": "5"},
	})
	require.NoError(t, err)
	assert.True(t, owner.Allowed)

	stranger, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "6"},
		Action:    "update",
		Context:   map[string]interface{}{"owner": "5"},
	})
	require.NoError(t, err)
	assert.False(t, stranger.Allowed)
}

func TestEngine_Evaluate_UnknownConditionIsConfigError(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{
				Principal: StringList{"*"},
				Action:    StringList{"*"},
				Condition: StringList{"not_registered"},
				Effect:    EffectAllow,
			},
		},
	})

	_, err := eng.Evaluate(context.Background(), &Request{Action: "create"})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestEngine_Evaluate_ConditionsSkippedWhenPrincipalRejects(t *testing.T) {
	t.Parallel()

	// The misconfigured condition sits in a statement the principal never
	// matches, so the request is simply denied.
	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{
				Principal: StringList{"group:admins"},
				Action:    StringList{"*"},
				Condition: StringList{"not_registered"},
				Effect:    EffectAllow,
			},
		},
	})

	decision, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "5"},
		Action:    "create",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEngine_EvaluateStatements_BypassesConfigured(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"*"}, Action: StringList{"*"}, Effect: EffectDeny},
		},
	})

	statements := []Statement{
		{Principals: []string{"*"}, Actions: []string{"*"}, Effect: EffectAllow},
	}

	decision, err := eng.EvaluateStatements(context.Background(), statements, &Request{Action: "create"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_Evaluate_Cache(t *testing.T) {
	t.Parallel()

	config := &Config{
		Statements: []RawStatement{
			{Principal: StringList{"id:5"}, Action: StringList{"create"}, Effect: EffectAllow},
		},
		Cache: &CacheConfig{Enabled: true, TTL: time.Minute},
	}

	eng := newTestEngine(t, config)
	req := &Request{
		Principal: &PrincipalContext{Subject: "5"},
		Action:    "create",
	}

	first, err := eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.False(t, first.Cached)

	second, err := eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.True(t, second.Cached)
}

func TestEngine_Evaluate_CachedDecisionsDoNotAlias(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"id:a"}, Action: StringList{"create:x"}, Effect: EffectAllow},
		},
		Cache: &CacheConfig{Enabled: true, TTL: time.Minute},
	})

	allowed, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "a"},
		Action:    "create:x",
	})
	require.NoError(t, err)
	require.True(t, allowed.Allowed)

	// A different principal and action whose concatenation reads the same
	// must not pick up the cached allow.
	denied, err := eng.Evaluate(context.Background(), &Request{
		Principal: &PrincipalContext{Subject: "a:create"},
		Action:    "x",
	})
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.False(t, denied.Cached)
}

func TestEngine_Evaluate_ConditionsBypassCache(t *testing.T) {
	t.Parallel()

	var calls int

	registry := NewRegistry()
	registry.Register("counted", func(context.Context, *Request, string) (bool, error) {
		calls++
		return true, nil
	})

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{
				Principal: StringList{"*"},
				Action:    StringList{"*"},
				Condition: StringList{"counted"},
				Effect:    EffectAllow,
			},
		},
		Cache: &CacheConfig{Enabled: true, TTL: time.Minute},
	}, WithRegistry(registry))

	req := &Request{Principal: &PrincipalContext{Subject: "5"}, Action: "create"}

	for i := 0; i < 3; i++ {
		decision, err := eng.Evaluate(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.False(t, decision.Cached)
	}

	// Conditioned statements are re-evaluated on every request.
	assert.Equal(t, 3, calls)
}

func TestEngine_SetStatements_ClearsCache(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &Config{
		Statements: []RawStatement{
			{Principal: StringList{"id:5"}, Action: StringList{"create"}, Effect: EffectAllow},
		},
		Cache: &CacheConfig{Enabled: true, TTL: time.Minute},
	})

	req := &Request{Principal: &PrincipalContext{Subject: "5"}, Action: "create"}

	_, err := eng.Evaluate(context.Background(), req)
	require.NoError(t, err)

	cached, err := eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached.Cached)

	eng.SetStatements(NormalizeStatements([]RawStatement{
		{Principal: StringList{"id:5"}, Action: StringList{"create"}, Effect: EffectDeny},
	}))

	after, err := eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, after.Allowed)
	assert.False(t, after.Cached)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		matched   []Statement
		allowed   bool
		statement string
	}{
		{
			name:    "empty is denied",
			matched: nil,
			allowed: false,
		},
		{
			name: "single allow",
			matched: []Statement{
				{Name: "a", Effect: EffectAllow},
			},
			allowed:   true,
			statement: "a",
		},
		{
			name: "deny among allows wins",
			matched: []Statement{
				{Name: "a", Effect: EffectAllow},
				{Name: "d", Effect: EffectDeny},
				{Name: "b", Effect: EffectAllow},
			},
			allowed:   false,
			statement: "d",
		},
		{
			name: "unrecognized effect is a deny",
			matched: []Statement{
				{Name: "a", Effect: EffectAllow},
				{Name: "typo", Effect: "allo"},
			},
			allowed:   false,
			statement: "typo",
		},
		{
			name: "empty effect is a deny",
			matched: []Statement{
				{Name: "blank"},
			},
			allowed:   false,
			statement: "blank",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := resolve(tt.matched)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.statement, decision.Statement)
		})
	}
}
