package policy

// Principal pattern tokens.
const (
	// PrincipalAll matches any principal.
	PrincipalAll = "*"

	// PrincipalAuthenticated matches any non-anonymous principal.
	PrincipalAuthenticated = "authenticated"

	// PrincipalAnonymous matches the anonymous principal.
	PrincipalAnonymous = "anonymous"

	// IDPrefix prefixes an exact subject match pattern.
	IDPrefix = "id:"

	// GroupPrefix prefixes a group membership pattern.
	GroupPrefix = "group:"
)

// PrincipalContext describes the requester as of evaluation time.
type PrincipalContext struct {
	// Subject is the requester's identity. Empty for anonymous requesters.
	Subject string

	// Anonymous indicates an unauthenticated requester.
	Anonymous bool

	// Groups is the set of group names the requester belongs to.
	// Anonymous requesters have an empty group set.
	Groups []string
}

// AnonymousPrincipal returns the principal context for an unauthenticated
// requester.
func AnonymousPrincipal() *PrincipalContext {
	return &PrincipalContext{Anonymous: true}
}

// MatchesPrincipal reports whether the statement's principal clause matches
// the given principal context. Special tokens take precedence over id: and
// group: patterns: a statement containing `*` matches unconditionally, and
// `authenticated`/`anonymous` decide the match before any id: or group:
// pattern is consulted.
func (s *Statement) MatchesPrincipal(principal *PrincipalContext) bool {
	switch {
	case contains(s.Principals, PrincipalAll):
		return true
	case contains(s.Principals, PrincipalAuthenticated):
		return !principal.Anonymous
	case contains(s.Principals, PrincipalAnonymous):
		return principal.Anonymous
	}

	if principal.Anonymous {
		return false
	}

	if contains(s.Principals, IDPrefix+principal.Subject) {
		return true
	}

	for _, group := range principal.Groups {
		if contains(s.Principals, GroupPrefix+group) {
			return true
		}
	}

	return false
}

// matchingPrincipal filters statements to those whose principal clause
// matches, preserving order.
func matchingPrincipal(principal *PrincipalContext, statements []Statement) []Statement {
	matched := make([]Statement, 0, len(statements))
	for _, s := range statements {
		if s.MatchesPrincipal(principal) {
			matched = append(matched, s)
		}
	}
	return matched
}
