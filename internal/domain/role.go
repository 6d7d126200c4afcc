package domain

// Role names the capability a task is addressed to. The set of roles the
// engine will actually dispatch is closed by the agent registry at startup;
// the type itself stays open so hosts can register additional capabilities
// without touching this package.
type Role string

// Roles of the standard crew. Concrete implementations live outside the
// engine and are registered under these names.
const (
	RoleArchitect   Role = "architect"
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
	RoleTester      Role = "tester"
	RoleMaintainer  Role = "maintainer"
	RoleCatcher     Role = "catcher"
	RoleScout       Role = "scout"
)

// KnownRoles returns the roles the standard crew ships with, in a stable
// order. Used for seeding registries and for diagnostics.
func KnownRoles() []Role {
	return []Role{
		RoleArchitect,
		RoleImplementer,
		RoleReviewer,
		RoleTester,
		RoleMaintainer,
		RoleCatcher,
		RoleScout,
	}
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}
