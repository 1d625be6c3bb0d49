package types

import "fmt"

// Role is a capability tag. Membership of a role is a set of addresses.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RolePayer
	RoleAgent
	RoleComplianceOfficer
)

var roleNames = map[Role]string{
	RoleAdmin:             "ADMIN_ROLE",
	RolePayer:             "PAYER_ROLE",
	RoleAgent:             "AGENT_ROLE",
	RoleComplianceOfficer: "COMPLIANCE_OFFICER_ROLE",
}

// Roles lists every role in declaration order.
var Roles = []Role{RoleAdmin, RolePayer, RoleAgent, RoleComplianceOfficer}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", uint8(r))
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole accepts either the full name ("PAYER_ROLE") or the short
// lowercase form ("payer").
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if s == name || s == shortRoleName(name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func shortRoleName(name string) string {
	switch name {
	case "ADMIN_ROLE":
		return "admin"
	case "PAYER_ROLE":
		return "payer"
	case "AGENT_ROLE":
		return "agent"
	case "COMPLIANCE_OFFICER_ROLE":
		return "compliance_officer"
	}
	return ""
}
