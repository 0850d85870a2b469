// Package auth provides the identity model and claims extraction used to
// build principal contexts for policy evaluation.
package auth

import (
	"context"
	"time"
)

// Identity represents an authenticated identity.
type Identity struct {
	// Subject is the unique identifier for the identity (e.g., user ID).
	Subject string `json:"sub"`

	// Issuer is the issuer of the identity (e.g., OIDC provider).
	Issuer string `json:"iss,omitempty"`

	// Groups contains the groups the identity belongs to.
	Groups []string `json:"groups,omitempty"`

	// Email is the email address of the identity.
	Email string `json:"email,omitempty"`

	// Name is the display name of the identity.
	Name string `json:"name,omitempty"`

	// ExpiresAt is when the identity expires.
	ExpiresAt time.Time `json:"exp,omitempty"`

	// Claims contains additional claims from the authentication.
	Claims map[string]interface{} `json:"claims,omitempty"`
}

// IsAnonymous reports whether the identity is absent or has no subject.
func (i *Identity) IsAnonymous() bool {
	return i == nil || i.Subject == ""
}

// identityContextKey is the context key for the identity.
type identityContextKey struct{}

// ContextWithIdentity returns a context carrying the identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok
}
