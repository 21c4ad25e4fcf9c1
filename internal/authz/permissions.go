package authz

// Landing routes picked right after login. They are plain strings so the
// navigation layer can own the Route type.
const (
	LandingDeveloper = "/developer"
	LandingAdmin     = "/admin"
	LandingHome      = "/home"
)

// DefaultLandingRoute picks the first screen shown after login: the developer
// panel for developers, the admin panel for admins, home for everyone else
// including the empty role set. Each result is reachable by the roles that
// produce it.
func DefaultLandingRoute(roles Roles) string {
	switch {
	case Satisfies(roles, RoleDeveloper):
		return LandingDeveloper
	case Satisfies(roles, RoleAdmin):
		return LandingAdmin
	default:
		return LandingHome
	}
}

// CanManage reports whether a session holding acting may edit, block, unblock
// or reset the password of an account holding target.
//
// Developers manage anyone. Admins manage only accounts whose entire role set
// is exactly {user}; an admin can not manage another admin, nor a user who
// also holds a second role. Everyone else manages no one.
func CanManage(acting, target Roles) bool {
	switch {
	case acting.Has(RoleDeveloper):
		return true
	case acting.Has(RoleAdmin):
		return isPlainUser(target)
	default:
		return false
	}
}

func isPlainUser(roles Roles) bool {
	n := roles.Normalize()
	return len(n) == 1 && n[0] == RoleUser
}

// AssignableRoles lists the roles acting may give to an account, at creation
// or by a role change. Developers assign any role; admins assign only user.
func AssignableRoles(acting Roles) []Role {
	switch {
	case acting.Has(RoleDeveloper):
		return []Role{RoleUser, RoleAdmin, RoleDeveloper}
	case acting.Has(RoleAdmin):
		return []Role{RoleUser}
	default:
		return nil
	}
}

// CanAssign reports whether acting may give role to an account.
func CanAssign(acting Roles, role Role) bool {
	for _, r := range AssignableRoles(acting) {
		if r == role {
			return true
		}
	}
	return false
}

// CanChangeRole reports whether acting may replace target's role with role:
// the account must be manageable and the new role assignable.
func CanChangeRole(acting, target Roles, role Role) bool {
	return CanManage(acting, target) && CanAssign(acting, role)
}
