// Package authz is the TASPA role model: a fixed privilege ranking over roles
// plus the per-action permission rules used by administrative screens.
//
// All functions are pure and total. A role set is the roles reported by the
// identity endpoint; an empty set is valid and ranks below every role.
package authz

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a named permission tier.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// AllRoles lists every known role in ascending rank.
var AllRoles = []Role{RoleUser, RoleAdmin, RoleDeveloper}

// Rank returns the fixed privilege rank of r, or 0 for an unknown role.
func Rank(r Role) int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleDeveloper:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return Rank(r) > 0
}

func (r Role) String() string {
	return string(r)
}

// Label is the display name of r.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAdmin:
		return "Administrator"
	case RoleDeveloper:
		return "Developer"
	default:
		return string(r)
	}
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (want user, admin or developer)", s)
	}
	return r, nil
}

// Roles is a role set. Order and duplicates carry no meaning.
type Roles []Role

// Has reports whether r is in the set.
func (rs Roles) Has(r Role) bool {
	return slices.Contains(rs, r)
}

// Normalize returns the set without duplicates, sorted by ascending rank.
// Unknown roles sort first, by name.
func (rs Roles) Normalize() Roles {
	out := slices.Clone(rs)
	slices.SortFunc(out, func(a, b Role) int {
		if d := Rank(a) - Rank(b); d != 0 {
			return d
		}
		return strings.Compare(string(a), string(b))
	})
	return slices.Compact(out)
}

// Strings returns the role names.
func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func (rs Roles) String() string {
	return strings.Join(rs.Normalize().Strings(), ",")
}

// Level is the effective privilege of a role set: 0 when empty, otherwise the
// highest rank among its roles.
func Level(roles Roles) int {
	level := 0
	for _, r := range roles {
		level = max(level, Rank(r))
	}
	return level
}

// Satisfies reports whether roles reach the rank of required.
func Satisfies(roles Roles, required Role) bool {
	return Level(roles) >= Rank(required)
}

// Highest returns the highest-ranked role in the set, or "" when it holds no
// known role.
func Highest(roles Roles) Role {
	var best Role
	for _, r := range roles {
		if Rank(r) > Rank(best) {
			best = r
		}
	}
	return best
}
