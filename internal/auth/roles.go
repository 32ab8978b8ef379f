package auth

import (
	"strings"
)

// Operator roles, least to most privileged.
const (
	RoleTechnician = "technician"
	RoleOperator   = "operator"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// rolePermissions maps a role to the permissions it grants. A bare "*"
// grants everything. Permission strings are "domain:operation" with "*"
// wildcards on either side.
var rolePermissions = map[string][]string{
	RoleTechnician: {
		"dispatch:read",
		"tickets:read",
		"tickets:update",
		"schedule:read",
	},
	RoleOperator: {
		"dispatch:*",
		"tickets:*",
		"customers:read",
		"schedule:*",
		"search:*",
	},
	RoleManager: {
		"dispatch:*",
		"tickets:*",
		"customers:*",
		"schedule:*",
		"search:*",
		"billing:*",
	},
	RoleAdmin: {
		"*",
	},
}

// PermissionsForRole returns the permission list a role grants.
func PermissionsForRole(role string) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role plus individually granted
// permissions cover the given domain and operation.
func HasPermission(role string, granted []string, domain, operation string) bool {
	want := domain + ":" + operation
	for _, p := range rolePermissions[role] {
		if permissionMatches(p, want) {
			return true
		}
	}
	for _, p := range granted {
		if permissionMatches(p, want) {
			return true
		}
	}
	return false
}

func permissionMatches(pattern, want string) bool {
	if pattern == "*" {
		return true
	}
	pd, po, ok := splitPermission(pattern)
	if !ok {
		return false
	}
	wd, wo, ok := splitPermission(want)
	if !ok {
		return false
	}
	if pd != "*" && pd != wd {
		return false
	}
	return po == "*" || po == wo
}

func splitPermission(s string) (domain, operation string, ok bool) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// RoleAtLeast reports whether role has at least the privilege of min.
func RoleAtLeast(role, min string) bool {
	return roleRank(role) >= roleRank(min)
}

func roleRank(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleManager:
		return 2
	case RoleOperator:
		return 1
	case RoleTechnician:
		return 0
	default:
		return -1
	}
}
