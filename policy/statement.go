package policy

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Effect represents the effect of a statement.
type Effect string

// Statement effects.
const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// StringList is a list of strings that also accepts a single scalar string
// when unmarshaled from YAML or JSON.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	}

	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = StringList(list)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = StringList(list)
	return nil
}

// RawStatement is a statement as authored in configuration. Principal and
// action fields accept either a single string or a list; the condition
// field may be absent. Unknown fields are preserved in Extra.
type RawStatement struct {
	// Name is an optional statement name used in logs and metrics.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Principal is the list of principal patterns.
	Principal StringList `yaml:"principal" json:"principal"`

	// Action is the list of action patterns.
	Action StringList `yaml:"action" json:"action"`

	// Condition is the list of condition expressions.
	Condition StringList `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Effect is the statement effect (allow or deny).
	Effect Effect `yaml:"effect" json:"effect"`

	// Extra holds unknown fields so they survive a load/normalize round trip.
	Extra map[string]interface{} `yaml:",inline" json:"-"`
}

// Statement is a normalized authorization statement. Principals and Actions
// are never empty; Conditions is never nil.
type Statement struct {
	// Name is an optional statement name used in logs and metrics.
	Name string

	// Principals is the list of principal patterns.
	Principals []string

	// Actions is the list of action patterns.
	Actions []string

	// Conditions is the list of condition expressions.
	Conditions []string

	// Effect is the statement effect.
	Effect Effect

	// Extra holds fields carried through from the raw statement.
	Extra map[string]interface{}
}

// Raw converts the statement back to its raw form.
func (s Statement) Raw() RawStatement {
	return RawStatement{
		Name:      s.Name,
		Principal: StringList(s.Principals),
		Action:    StringList(s.Actions),
		Condition: StringList(s.Conditions),
		Effect:    s.Effect,
		Extra:     s.Extra,
	}
}

// NormalizeStatement normalizes a single raw statement. The result never
// shares slice storage with the input, so callers may reuse raw statements
// across concurrent evaluations.
func NormalizeStatement(raw RawStatement) Statement {
	return Statement{
		Name:       raw.Name,
		Principals: copyStrings(raw.Principal),
		Actions:    copyStrings(raw.Action),
		Conditions: copyStrings(raw.Condition),
		Effect:     raw.Effect,
		Extra:      raw.Extra,
	}
}

// NormalizeStatements normalizes a list of raw statements. Normalization is
// idempotent: normalizing an already-normalized list yields an equal list.
func NormalizeStatements(raw []RawStatement) []Statement {
	statements := make([]Statement, len(raw))
	for i, r := range raw {
		statements[i] = NormalizeStatement(r)
	}
	return statements
}

// copyStrings copies a string list, mapping nil to an empty slice.
func copyStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// contains reports whether values contains want.
func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
