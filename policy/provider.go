package policy

import (
	"context"

	"github.com/vyrodovalexey/avaccess/auth"
)

// PrincipalContextProvider supplies the requester's principal context
// (identity and group memberships) as of evaluation time. The host selects
// the concrete provider at wiring time; the engine never branches on
// provider type.
type PrincipalContextProvider interface {
	// PrincipalContext returns the principal context for an identity.
	// A nil identity means the requester is unauthenticated.
	PrincipalContext(ctx context.Context, identity *auth.Identity) (*PrincipalContext, error)
}

// IdentityProvider derives the principal context directly from an
// authenticated identity's subject and groups.
type IdentityProvider struct{}

// PrincipalContext implements PrincipalContextProvider.
func (IdentityProvider) PrincipalContext(_ context.Context, identity *auth.Identity) (*PrincipalContext, error) {
	if identity.IsAnonymous() {
		return AnonymousPrincipal(), nil
	}
	return &PrincipalContext{
		Subject: identity.Subject,
		Groups:  identity.Groups,
	}, nil
}

// Ensure IdentityProvider implements PrincipalContextProvider.
var _ PrincipalContextProvider = IdentityProvider{}
