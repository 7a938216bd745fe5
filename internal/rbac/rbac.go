// Package rbac holds the workspace role model. Every permission check in
// the service resolves to a Member row and that row's role; roles never
// attach to raw users.
package rbac

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsAdmin reports whether the role grants admin-gated actions
// (pin/unpin, role changes, removing other members' resources).
func IsAdmin(role Role) bool {
	return role == RoleAdmin
}

// Valid reports whether the string is a known role.
func Valid(role string) bool {
	return Role(role) == RoleAdmin || Role(role) == RoleMember
}

func Normalize(role string) Role {
	if Role(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleMember
}
