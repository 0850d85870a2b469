package policy

import (
	"errors"
	"fmt"
)

// ErrConfiguration indicates a mistake in the policy definition or its
// wiring. Configuration errors are fatal and distinct from deny decisions:
// callers must not conflate "denied" with "misconfigured".
var ErrConfiguration = errors.New("invalid access policy configuration")

// ConfigError represents a policy configuration error.
type ConfigError struct {
	// Condition is the condition expression the error concerns, if any.
	Condition string

	// Reason describes the misconfiguration.
	Reason string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.Reason
}

// Unwrap returns the configuration sentinel.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewUnknownConditionError reports a condition naming an unregistered
// predicate.
func NewUnknownConditionError(name string) *ConfigError {
	return &ConfigError{
		Condition: name,
		Reason:    fmt.Sprintf("condition %q must be registered in the condition registry", name),
	}
}

// NewConditionResultError reports a condition whose predicate produced a
// non-boolean result.
func NewConditionResultError(condition, observedType string) *ConfigError {
	return &ConfigError{
		Condition: condition,
		Reason:    fmt.Sprintf("condition %q must return true/false, not %s", condition, observedType),
	}
}

// NewNoActionError reports that no action name could be derived for a
// request.
func NewNoActionError() *ConfigError {
	return &ConfigError{Reason: "could not determine action of request"}
}

// IsConfigError checks if an error is a policy configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
