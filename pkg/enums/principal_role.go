package enums

import "fmt"

// PrincipalRole describes what a token holder is allowed to do.
type PrincipalRole string

const (
	PrincipalRoleTrader  PrincipalRole = "trader"
	PrincipalRoleService PrincipalRole = "service"
	PrincipalRoleAdmin   PrincipalRole = "admin"
)

var validPrincipalRoles = []PrincipalRole{
	PrincipalRoleTrader,
	PrincipalRoleService,
	PrincipalRoleAdmin,
}

func (r PrincipalRole) IsValid() bool {
	for _, candidate := range validPrincipalRoles {
		if r == candidate {
			return true
		}
	}
	return false
}

// ParsePrincipalRole converts raw input into PrincipalRole.
func ParsePrincipalRole(value string) (PrincipalRole, error) {
	for _, candidate := range validPrincipalRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid principal role %q", value)
}
