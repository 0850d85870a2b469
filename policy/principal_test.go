package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatement_MatchesPrincipal(t *testing.T) {
	t.Parallel()

	authenticated := &PrincipalContext{Subject: "5", Groups: []string{"cooks", "waiters"}}
	anonymous := AnonymousPrincipal()

	tests := []struct {
		name       string
		principals []string
		principal  *PrincipalContext
		expected   bool
	}{
		{
			name:       "wildcard matches authenticated",
			principals: []string{"*"},
			principal:  authenticated,
			expected:   true,
		},
		{
			name:       "wildcard matches anonymous",
			principals: []string{"*"},
			principal:  anonymous,
			expected:   true,
		},
		{
			name:       "authenticated token matches authenticated",
			principals: []string{"authenticated"},
			principal:  authenticated,
			expected:   true,
		},
		{
			name:       "authenticated token rejects anonymous",
			principals: []string{"authenticated"},
			principal:  anonymous,
			expected:   false,
		},
		{
			name:       "anonymous token matches anonymous",
			principals: []string{"anonymous"},
			principal:  anonymous,
			expected:   true,
		},
		{
			name:       "anonymous token rejects authenticated",
			principals: []string{"anonymous"},
			principal:  authenticated,
			expected:   false,
		},
		{
			name:       "id match",
			principals: []string{"id:5"},
			principal:  authenticated,
			expected:   true,
		},
		{
			name:       "id mismatch",
			principals: []string{"id:6"},
			principal:  authenticated,
			expected:   false,
		},
		{
			name:       "group match",
			principals: []string{"group:waiters"},
			principal:  authenticated,
			expected:   true,
		},
		{
			name:       "group mismatch",
			principals: []string{"group:managers"},
			principal:  authenticated,
			expected:   false,
		},
		{
			name:       "group pattern never matches anonymous",
			principals: []string{"group:cooks"},
			principal:  anonymous,
			expected:   false,
		},
		{
			name:       "id and group alternatives are OR'd",
			principals: []string{"id:9", "group:cooks"},
			principal:  authenticated,
			expected:   true,
		},
		{
			name:       "wildcard wins regardless of other patterns",
			principals: []string{"id:9", "*"},
			principal:  anonymous,
			expected:   true,
		},
		{
			name:       "authenticated token decides before id patterns",
			principals: []string{"authenticated", "id:5"},
			principal:  anonymous,
			expected:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := &Statement{Principals: tt.principals}
			assert.Equal(t, tt.expected, s.MatchesPrincipal(tt.principal))
		})
	}
}

func TestMatchingPrincipal_PreservesOrder(t *testing.T) {
	t.Parallel()

	statements := []Statement{
		{Name: "first", Principals: []string{"*"}},
		{Name: "skipped", Principals: []string{"group:managers"}},
		{Name: "second", Principals: []string{"id:5"}},
	}

	matched := matchingPrincipal(&PrincipalContext{Subject: "5"}, statements)

	assert.Len(t, matched, 2)
	assert.Equal(t, "first", matched[0].Name)
	assert.Equal(t, "second", matched[1].Name)
}
