package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_IsAnonymous(t *testing.T) {
	t.Parallel()

	var nilIdentity *Identity
	assert.True(t, nilIdentity.IsAnonymous())
	assert.True(t, (&Identity{}).IsAnonymous())
	assert.False(t, (&Identity{Subject: "5"}).IsAnonymous())
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	identity := &Identity{Subject: "5", Groups: []string{"cooks"}}
	ctx := ContextWithIdentity(context.Background(), identity)

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, identity, got)
}
