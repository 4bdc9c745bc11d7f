package enums

import "fmt"

// ActorRole describes the roles an authenticated caller can hold.
type ActorRole string

const (
	ActorRoleUser       ActorRole = "user"
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleSuperAdmin ActorRole = "superadmin"
)

var validActorRoles = []ActorRole{
	ActorRoleUser,
	ActorRoleAdmin,
	ActorRoleSuperAdmin,
}

// IsValid reports whether the value matches the canonical actor role enum.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may act on accounts it does not own.
func (r ActorRole) IsPrivileged() bool {
	return r == ActorRoleAdmin || r == ActorRoleSuperAdmin
}

// ParseActorRole converts the raw string to ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
