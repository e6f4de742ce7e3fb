// Package access implements role-based workspace filtering for query callers.
package access

import (
	"fmt"
	"strings"
)

// Role identifies a caller class. The set is closed: behavior is dispatched
// through one table rather than per-role types.
type Role string

const (
	RoleAnalyst   Role = "analyst"
	RoleDeveloper Role = "developer"
)

// behavior is one dispatch entry: whether the role may touch a workspace,
// and how its table listing is filtered.
type behavior struct {
	canAccess    func(workspace string) bool
	filterTables func(tables []string) []string
}

var behaviors = map[Role]behavior{
	RoleAnalyst: {
		// Analysts are confined to the analytics workspace.
		canAccess: func(ws string) bool {
			return ws == "" || ws == "analytics"
		},
		// Internal bookkeeping tables are hidden from analysts.
		filterTables: func(tables []string) []string {
			out := make([]string, 0, len(tables))
			for _, t := range tables {
				if strings.HasPrefix(t, "_") || t == "settings" || t == "query_log" {
					continue
				}
				out = append(out, t)
			}
			return out
		},
	},
	RoleDeveloper: {
		canAccess:    func(string) bool { return true },
		filterTables: func(tables []string) []string { return tables },
	},
}

// ParseRole validates a role string. Empty defaults to analyst, the most
// restrictive role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case "":
		return RoleAnalyst, nil
	case RoleAnalyst:
		return RoleAnalyst, nil
	case RoleDeveloper:
		return RoleDeveloper, nil
	default:
		return "", fmt.Errorf("access.ParseRole: unknown role %q", s)
	}
}

// CanAccess reports whether the role may query the given workspace.
func (r Role) CanAccess(workspace string) bool {
	return r.behavior().canAccess(workspace)
}

// FilterTables returns the table names visible to the role.
func (r Role) FilterTables(tables []string) []string {
	return r.behavior().filterTables(tables)
}

// behavior falls back to the analyst entry for any role value not in the
// table, so an unknown role can never widen access.
func (r Role) behavior() behavior {
	if b, ok := behaviors[r]; ok {
		return b
	}
	return behaviors[RoleAnalyst]
}
