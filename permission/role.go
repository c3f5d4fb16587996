package permission

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownRole is returned for role names outside the fixed table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrPermissionDenied is returned when a role ranks below the requirement.
	ErrPermissionDenied = errors.New("permission denied")
)

// Role is a position in the fixed role hierarchy.
type Role string

const (
	Admin             Role = "admin"
	OrganizationAdmin Role = "organization_admin"
	Agent             Role = "agent"
	FormManager       Role = "form_manager"
	ReadOnly          Role = "read_only"
)

var ranks = map[Role]int{
	Admin:             5,
	OrganizationAdmin: 4,
	Agent:             3,
	FormManager:       2,
	ReadOnly:          1,
}

// Roles returns every known role, highest rank first.
func Roles() []Role {
	return []Role{Admin, OrganizationAdmin, Agent, FormManager, ReadOnly}
}

// ParseRole resolves a role name. Matching ignores case and surrounding space.
func ParseRole(name string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := ranks[r]; !ok {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Rank returns the numeric rank of r, or 0 for unknown roles.
func Rank(r Role) int {
	return ranks[r]
}

// Valid reports whether r is in the table.
func (r Role) Valid() bool {
	return Rank(r) > 0
}

func (r Role) String() string {
	return string(r)
}

// HasPermission reports whether actor ranks at least as high as required.
// Unknown roles on either side yield false.
func HasPermission(actor, required Role) bool {
	a, r := Rank(actor), Rank(required)
	if a == 0 || r == 0 {
		return false
	}
	return a >= r
}

// CheckPermission is HasPermission with a reason: ErrUnknownRole when either
// role is not in the table, ErrPermissionDenied when actor ranks too low.
func CheckPermission(actor, required Role) error {
	if !actor.Valid() || !required.Valid() {
		return ErrUnknownRole
	}
	if Rank(actor) < Rank(required) {
		return ErrPermissionDenied
	}
	return nil
}

// CanAccessOrganization reports whether a principal with role and
// principalOrg may act on targetOrg. Admin reaches every organization; every
// other known role needs an exact, non-empty match.
func CanAccessOrganization(role Role, principalOrg, targetOrg string) bool {
	if !role.Valid() {
		return false
	}
	if role == Admin {
		return true
	}
	return principalOrg != "" && principalOrg == targetOrg
}
