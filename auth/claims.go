package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avaccess/observability"
)

// defaultGroupsClaim is the claim holding group membership.
const defaultGroupsClaim = "groups"

// ClaimsConfig configures claims-based identity extraction.
type ClaimsConfig struct {
	// GroupsClaim is the claim holding group membership. The claim value
	// may be a list of strings or a single space-separated string.
	GroupsClaim string `yaml:"groupsClaim,omitempty" json:"groupsClaim,omitempty"`

	// Issuer, when set, is the expected token issuer.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience, when set, is the expected token audience.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// KeySet is the key set used to verify token signatures. When nil,
	// tokens are parsed without verification; only do this behind a
	// gateway that has already verified them.
	KeySet jwk.Set `yaml:"-" json:"-"`
}

// ClaimsExtractor builds identities from JWT claims.
type ClaimsExtractor struct {
	config *ClaimsConfig
	logger observability.Logger
}

// ClaimsExtractorOption is a functional option for the extractor.
type ClaimsExtractorOption func(*ClaimsExtractor)

// WithClaimsLogger sets the logger.
func WithClaimsLogger(logger observability.Logger) ClaimsExtractorOption {
	return func(e *ClaimsExtractor) {
		e.logger = logger
	}
}

// NewClaimsExtractor creates a new claims extractor.
func NewClaimsExtractor(config *ClaimsConfig, opts ...ClaimsExtractorOption) *ClaimsExtractor {
	if config == nil {
		config = &ClaimsConfig{}
	}

	e := &ClaimsExtractor{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// IdentityFromToken parses a JWT and builds an identity from its claims.
func (e *ClaimsExtractor) IdentityFromToken(ctx context.Context, token string) (*Identity, error) {
	tok, err := e.parse(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	identity := &Identity{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		ExpiresAt: tok.Expiration(),
		Claims:    tok.PrivateClaims(),
	}

	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			identity.Email = s
		}
	}
	if name, ok := tok.Get("name"); ok {
		if s, ok := name.(string); ok {
			identity.Name = s
		}
	}

	groupsClaim := e.config.GroupsClaim
	if groupsClaim == "" {
		groupsClaim = defaultGroupsClaim
	}
	if raw, ok := tok.Get(groupsClaim); ok {
		identity.Groups = GroupValues(raw)
	}

	return identity, nil
}

// parse parses and, when a key set is configured, verifies the token.
func (e *ClaimsExtractor) parse(ctx context.Context, token string) (jwt.Token, error) {
	if e.config.KeySet == nil {
		return jwt.ParseInsecure([]byte(token))
	}

	opts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKeySet(e.config.KeySet),
		jwt.WithValidate(true),
	}
	if e.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(e.config.Issuer))
	}
	if e.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(e.config.Audience))
	}

	return jwt.Parse([]byte(token), opts...)
}

// GroupValues extracts group names from a claim value. Providers deliver
// groups either as a list or as a single space-separated string.
func GroupValues(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
