package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/wardenhq/warden/internal/shared"
)

// RepositoryPort defines the persistence operations the service needs.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CountRoles(ctx context.Context) (int, error)
	ListRolesPage(ctx context.Context, limit, offset int) ([]RoleWithPermissions, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	CountPermissions(ctx context.Context) (int, error)
	ListPermissionsPage(ctx context.Context, limit, offset int) ([]Permission, error)
	RoleNameSet(ctx context.Context) ([]string, error)
	PermissionNameSet(ctx context.Context) ([]string, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error
	PermissionNamesForRole(ctx context.Context, roleID int64) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	PermissionNamesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Service is the authorization engine: it answers role and permission
// queries for a user and owns every mutation of the role/permission
// catalog, invalidating the cache after each one.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// RoleNames returns the role names assigned to a user, cache-backed.
func (s *Service) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	return s.cached(ctx, keyUserRoles(userID), func(ctx context.Context) ([]string, error) {
		return s.repo.RoleNamesForUser(ctx, userID)
	})
}

// EffectivePermissions returns the deduplicated permission names a user
// holds through all assigned roles, cache-backed.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.cached(ctx, keyUserPermissions(userID), func(ctx context.Context) ([]string, error) {
		return s.repo.PermissionNamesForUser(ctx, userID)
	})
}

// HasRole reports whether the user holds the named role. The name must
// exist in the catalog; unknown names are rejected rather than silently
// denied. Matching is case-sensitive and exact. A user with zero roles
// fails every check.
func (s *Service) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	known, err := s.cached(ctx, keyCatalogRoles, s.repo.RoleNameSet)
	if err != nil {
		return false, err
	}
	if !slices.Contains(known, roleName) {
		return false, fmt.Errorf("%w: %q", shared.ErrUnknownRole, roleName)
	}
	assigned, err := s.RoleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(assigned, roleName), nil
}

// HasPermission reports whether any of the user's roles carries the named
// permission. Unknown permission names are rejected.
func (s *Service) HasPermission(ctx context.Context, userID int64, permName string) (bool, error) {
	known, err := s.cached(ctx, keyCatalogPermissions, s.repo.PermissionNameSet)
	if err != nil {
		return false, err
	}
	if !slices.Contains(known, permName) {
		return false, fmt.Errorf("%w: %q", shared.ErrUnknownPermission, permName)
	}
	granted, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(granted, permName), nil
}

// Allows evaluates a composite role expression for the user. An empty
// expression gates nothing and allows everyone.
func (s *Service) Allows(ctx context.Context, userID int64, expr RoleExpr) (bool, error) {
	if expr.Empty() {
		return true, nil
	}
	for _, name := range expr.Roles() {
		ok, err := s.HasRole(ctx, userID, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AssignRole adds the named role to the user, keeping prior assignments.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return unknownRoleErr(roleName, err)
	}
	if err := s.repo.AssignRole(ctx, userID, role.ID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// SyncRoles replaces every prior role assignment of the user with exactly
// the given set, never a union. All names must exist in the catalog.
func (s *Service) SyncRoles(ctx context.Context, userID int64, roleNames []string) error {
	roleIDs := make([]int64, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.repo.GetRoleByName(ctx, name)
		if err != nil {
			return unknownRoleErr(name, err)
		}
		roleIDs = append(roleIDs, role.ID)
	}
	if err := s.repo.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// CreateRole inserts (or updates the description of) a role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	role, err := s.repo.CreateRole(ctx, name, description)
	if err != nil {
		return Role{}, err
	}
	return role, s.invalidate(ctx)
}

// CreatePermission inserts (or updates the description of) a permission.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	perm, err := s.repo.CreatePermission(ctx, name, description)
	if err != nil {
		return Permission{}, err
	}
	return perm, s.invalidate(ctx)
}

// GrantPermissions attaches the named permissions to the named role.
func (s *Service) GrantPermissions(ctx context.Context, roleName string, permNames []string) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return unknownRoleErr(roleName, err)
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]int64, len(perms))
	for _, p := range perms {
		byName[p.Name] = p.ID
	}
	for _, name := range permNames {
		id, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %q", shared.ErrUnknownPermission, name)
		}
		if err := s.repo.GrantPermission(ctx, role.ID, id); err != nil {
			return err
		}
	}
	return s.invalidate(ctx)
}

// RevokePermission detaches the named permission from the named role.
func (s *Service) RevokePermission(ctx context.Context, roleName, permName string) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return unknownRoleErr(roleName, err)
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p.Name == permName {
			if err := s.repo.RevokePermission(ctx, role.ID, p.ID); err != nil {
				return err
			}
			return s.invalidate(ctx)
		}
	}
	return fmt.Errorf("%w: %q", shared.ErrUnknownPermission, permName)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListRolesPage returns one page of roles with permission names, plus the
// total role count.
func (s *Service) ListRolesPage(ctx context.Context, limit, offset int) ([]RoleWithPermissions, int, error) {
	total, err := s.repo.CountRoles(ctx)
	if err != nil {
		return nil, 0, err
	}
	roles, err := s.repo.ListRolesPage(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListPermissionsPage returns one page of permissions plus the total count.
func (s *Service) ListPermissionsPage(ctx context.Context, limit, offset int) ([]Permission, int, error) {
	total, err := s.repo.CountPermissions(ctx)
	if err != nil {
		return nil, 0, err
	}
	perms, err := s.repo.ListPermissionsPage(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// CountRoles returns the number of roles.
func (s *Service) CountRoles(ctx context.Context) (int, error) {
	return s.repo.CountRoles(ctx)
}

// CountPermissions returns the number of permissions.
func (s *Service) CountPermissions(ctx context.Context) (int, error) {
	return s.repo.CountPermissions(ctx)
}

// InvalidateCache exposes cache invalidation to provisioning.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Service) cached(ctx context.Context, key string, loader func(context.Context) ([]string, error)) ([]string, error) {
	values, err := s.cache.FetchStrings(ctx, key, loader)
	if err != nil {
		// A broken cache must not break authorization; fall back to the store.
		if s.logger != nil {
			s.logger.Warn("rbac cache fallback", slog.String("key", key), slog.Any("error", err))
		}
		return loader(ctx)
	}
	return values, nil
}

func (s *Service) invalidate(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("rbac cache invalidate", slog.Any("error", err))
		}
		return err
	}
	return nil
}

func unknownRoleErr(name string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %q", shared.ErrUnknownRole, name)
	}
	return err
}
