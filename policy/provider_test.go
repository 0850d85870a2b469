package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaccess/auth"
)

func TestIdentityProvider(t *testing.T) {
	t.Parallel()

	provider := IdentityProvider{}

	t.Run("authenticated identity", func(t *testing.T) {
		t.Parallel()

		principal, err := provider.PrincipalContext(context.Background(), &auth.Identity{
			Subject: "5",
			Groups:  []string{"cooks"},
		})
		require.NoError(t, err)

		assert.Equal(t, "5", principal.Subject)
		assert.Equal(t, []string{"cooks"}, principal.Groups)
		assert.False(t, principal.Anonymous)
	})

	t.Run("nil identity is anonymous", func(t *testing.T) {
		t.Parallel()

		principal, err := provider.PrincipalContext(context.Background(), nil)
		require.NoError(t, err)
		assert.True(t, principal.Anonymous)
	})

	t.Run("empty subject is anonymous", func(t *testing.T) {
		t.Parallel()

		principal, err := provider.PrincipalContext(context.Background(), &auth.Identity{Groups: []string{"cooks"}})
		require.NoError(t, err)
		assert.True(t, principal.Anonymous)
		assert.Empty(t, principal.Groups)
	})
}
