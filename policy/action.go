package policy

import "net/http"

// Action pattern tokens.
const (
	// ActionAll matches any action.
	ActionAll = "*"

	// ActionSafeMethods matches when the request method is read-only.
	ActionSafeMethods = "<safe_methods>"
)

// SafeMethods is the set of read-only HTTP methods matched by the
// <safe_methods> shorthand.
var SafeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// IsSafeMethod reports whether method is in the safe method set.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// MatchesAction reports whether the statement's action clause matches the
// given action name and request method.
func (s *Statement) MatchesAction(action, method string) bool {
	if contains(s.Actions, action) || contains(s.Actions, ActionAll) {
		return true
	}
	if contains(s.Actions, ActionSafeMethods) && IsSafeMethod(method) {
		return true
	}
	return false
}

// matchingAction filters statements to those whose action clause matches,
// preserving order.
func matchingAction(action, method string, statements []Statement) []Statement {
	matched := make([]Statement, 0, len(statements))
	for _, s := range statements {
		if s.MatchesAction(action, method) {
			matched = append(matched, s)
		}
	}
	return matched
}
