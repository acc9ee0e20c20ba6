package rbac

import (
	"context"
	"time"
)

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleWithPermissions pairs a role with its permission names, used by the
// read-only role listing.
type RoleWithPermissions struct {
	Role
	Permissions []string
}

// Permission represents an atomic capability checked at a gate.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Canonical role names. Checks are exact-match on these strings; there is
// no hierarchy, so every gate enumerates the roles it accepts.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// Permission catalog. Names are the stable identity used at gates.
const (
	PermViewUsers   = "view-users"
	PermCreateUsers = "create-users"
	PermEditUsers   = "edit-users"
	PermDeleteUsers = "delete-users"

	PermViewRoles   = "view-roles"
	PermCreateRoles = "create-roles"
	PermEditRoles   = "edit-roles"
	PermDeleteRoles = "delete-roles"

	PermViewPermissions   = "view-permissions"
	PermCreatePermissions = "create-permissions"
	PermEditPermissions   = "edit-permissions"
	PermDeletePermissions = "delete-permissions"

	PermAdminAccess   = "admin-access"
	PermManagerAccess = "manager-access"
	PermUserAccess    = "user-access"

	PermEditProfile = "edit-profile"
	PermViewProfile = "view-profile"

	PermViewSystemInfo = "view-system-info"
	PermManageSettings = "manage-settings"
)

// PermissionCatalog lists every permission the application checks.
func PermissionCatalog() []string {
	return []string{
		PermViewUsers, PermCreateUsers, PermEditUsers, PermDeleteUsers,
		PermViewRoles, PermCreateRoles, PermEditRoles, PermDeleteRoles,
		PermViewPermissions, PermCreatePermissions, PermEditPermissions, PermDeletePermissions,
		PermAdminAccess, PermManagerAccess, PermUserAccess,
		PermEditProfile, PermViewProfile,
		PermViewSystemInfo, PermManageSettings,
	}
}

// RoleExpr is a composite boolean expression over role names attached to a
// route gate. AnyOf is the only combinator the routes need.
type RoleExpr struct {
	anyOf []string
}

// AnyOf builds an expression satisfied when the user holds at least one of
// the named roles.
func AnyOf(names ...string) RoleExpr {
	return RoleExpr{anyOf: names}
}

// Roles returns the role names the expression accepts.
func (e RoleExpr) Roles() []string {
	return e.anyOf
}

// Empty reports whether the expression gates nothing.
func (e RoleExpr) Empty() bool {
	return len(e.anyOf) == 0
}

// Principal describes the authenticated actor resolved by the middleware.
type Principal struct {
	ID    int64
	Name  string
	Email string
}

// PrincipalResolver loads the identity behind a session user ID. The auth
// service implements it; inactive or deleted accounts must return an error.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID int64) (Principal, error)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
