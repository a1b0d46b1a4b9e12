package domain

import "fmt"

// Role is the coarse authorization level carried in access tokens.
type Role string

// Canonical role literals. Comparison is exact and case-sensitive.
const (
	RoleAdministrator Role = "administrator"
	RoleUser          Role = "user"
)

// ParseRole accepts only the canonical literals.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdministrator, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) IsAdministrator() bool {
	return r == RoleAdministrator
}

func (r Role) String() string {
	return string(r)
}
