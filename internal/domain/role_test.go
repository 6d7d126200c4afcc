package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownRoles(t *testing.T) {
	t.Parallel()

	roles := KnownRoles()
	assert.Equal(t, []Role{
		RoleArchitect,
		RoleImplementer,
		RoleReviewer,
		RoleTester,
		RoleMaintainer,
		RoleCatcher,
		RoleScout,
	}, roles, "role order is stable")

	seen := make(map[Role]bool, len(roles))
	for _, r := range roles {
		assert.NotEmpty(t, r.String())
		assert.False(t, seen[r], "duplicate role %s", r)
		seen[r] = true
	}
}
