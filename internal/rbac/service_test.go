package rbac_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
	_ "github.com/wardenhq/warden/testing"
)

// fakeRepo is an in-memory RepositoryPort with loader call counters so
// tests can observe cache hits and misses.
type fakeRepo struct {
	nextID    int64
	roles     map[string]rbac.Role
	perms     map[string]rbac.Permission
	rolePerms map[int64][]int64
	userRoles map[int64][]int64

	userRoleLoads int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		roles:     make(map[string]rbac.Role),
		perms:     make(map[string]rbac.Permission),
		rolePerms: make(map[int64][]int64),
		userRoles: make(map[int64][]int64),
	}
}

func (f *fakeRepo) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	if existing, ok := f.roles[name]; ok {
		existing.Description = description
		f.roles[name] = existing
		return existing, nil
	}
	f.nextID++
	role := rbac.Role{ID: f.nextID, Name: name, Description: description}
	f.roles[name] = role
	return role, nil
}

func (f *fakeRepo) CreatePermission(ctx context.Context, name, description string) (rbac.Permission, error) {
	if existing, ok := f.perms[name]; ok {
		existing.Description = description
		f.perms[name] = existing
		return existing, nil
	}
	f.nextID++
	perm := rbac.Permission{ID: f.nextID, Name: name, Description: description}
	f.perms[name] = perm
	return perm, nil
}

func (f *fakeRepo) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	role, ok := f.roles[name]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (f *fakeRepo) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeRepo) CountRoles(ctx context.Context) (int, error) {
	return len(f.roles), nil
}

func (f *fakeRepo) ListRolesPage(ctx context.Context, limit, offset int) ([]rbac.RoleWithPermissions, error) {
	var out []rbac.RoleWithPermissions
	for _, role := range f.roles {
		names, _ := f.PermissionNamesForRole(ctx, role.ID)
		out = append(out, rbac.RoleWithPermissions{Role: role, Permissions: names})
	}
	return out, nil
}

func (f *fakeRepo) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	out := make([]rbac.Permission, 0, len(f.perms))
	for _, perm := range f.perms {
		out = append(out, perm)
	}
	return out, nil
}

func (f *fakeRepo) CountPermissions(ctx context.Context) (int, error) {
	return len(f.perms), nil
}

func (f *fakeRepo) ListPermissionsPage(ctx context.Context, limit, offset int) ([]rbac.Permission, error) {
	return f.ListPermissions(ctx)
}

func (f *fakeRepo) RoleNameSet(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.roles))
	for name := range f.roles {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeRepo) PermissionNameSet(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.perms))
	for name := range f.perms {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeRepo) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if !slices.Contains(f.rolePerms[roleID], permissionID) {
		f.rolePerms[roleID] = append(f.rolePerms[roleID], permissionID)
	}
	return nil
}

func (f *fakeRepo) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	f.rolePerms[roleID] = slices.DeleteFunc(f.rolePerms[roleID], func(id int64) bool { return id == permissionID })
	return nil
}

func (f *fakeRepo) PermissionNamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	var names []string
	for _, permID := range f.rolePerms[roleID] {
		for name, perm := range f.perms {
			if perm.ID == permID {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (f *fakeRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if !slices.Contains(f.userRoles[userID], roleID) {
		f.userRoles[userID] = append(f.userRoles[userID], roleID)
	}
	return nil
}

func (f *fakeRepo) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	f.userRoles[userID] = slices.Clone(roleIDs)
	return nil
}

func (f *fakeRepo) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	f.userRoleLoads++
	var names []string
	for _, roleID := range f.userRoles[userID] {
		for name, role := range f.roles {
			if role.ID == roleID {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (f *fakeRepo) PermissionNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, roleID := range f.userRoles[userID] {
		rolePerms, _ := f.PermissionNamesForRole(ctx, roleID)
		for _, name := range rolePerms {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func newService(t *testing.T) (*rbac.Service, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newFakeRepo()
	return rbac.NewService(repo, rbac.NewCache(client, time.Hour), nil), repo
}

func seedCatalog(t *testing.T, svc *rbac.Service) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleUser} {
		_, err := svc.CreateRole(ctx, name, "")
		require.NoError(t, err)
	}
	for _, name := range rbac.PermissionCatalog() {
		_, err := svc.CreatePermission(ctx, name, "")
		require.NoError(t, err)
	}
}

func TestHasRoleUnknownNameRejected(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)

	_, err := svc.HasRole(context.Background(), 1, "superadmin")
	require.ErrorIs(t, err, shared.ErrUnknownRole)

	_, err = svc.HasPermission(context.Background(), 1, "launch-missiles")
	require.ErrorIs(t, err, shared.ErrUnknownPermission)
}

func TestRoleMatchingIsExact(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 1, rbac.RoleAdmin))

	ok, err := svc.HasRole(ctx, 1, rbac.RoleAdmin)
	require.NoError(t, err)
	require.True(t, ok)

	// Different case is a different, unknown name.
	_, err = svc.HasRole(ctx, 1, "Admin")
	require.ErrorIs(t, err, shared.ErrUnknownRole)
}

func TestZeroRolesFailEveryCheck(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	ok, err := svc.HasRole(ctx, 42, rbac.RoleUser)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasPermission(ctx, 42, rbac.PermUserAccess)
	require.NoError(t, err)
	require.False(t, ok)

	allowed, err := svc.Allows(ctx, 42, rbac.AnyOf(rbac.RoleManager, rbac.RoleAdmin))
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAllowsAnyOf(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 7, rbac.RoleManager))

	allowed, err := svc.Allows(ctx, 7, rbac.AnyOf(rbac.RoleManager, rbac.RoleAdmin))
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = svc.Allows(ctx, 7, rbac.AnyOf(rbac.RoleAdmin))
	require.NoError(t, err)
	require.False(t, allowed)

	// An empty expression gates nothing.
	allowed, err = svc.Allows(ctx, 7, rbac.AnyOf())
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSyncRolesReplacesAssignments(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 3, rbac.RoleUser))
	require.NoError(t, svc.SyncRoles(ctx, 3, []string{rbac.RoleManager}))

	names, err := svc.RoleNames(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{rbac.RoleManager}, names)

	require.ErrorIs(t, svc.SyncRoles(ctx, 3, []string{"ghost"}), shared.ErrUnknownRole)
}

func TestEffectivePermissionsFollowGrants(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.GrantPermissions(ctx, rbac.RoleManager, []string{rbac.PermViewUsers, rbac.PermManagerAccess}))
	require.NoError(t, svc.AssignRole(ctx, 5, rbac.RoleManager))

	ok, err := svc.HasPermission(ctx, 5, rbac.PermViewUsers)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.RevokePermission(ctx, rbac.RoleManager, rbac.PermViewUsers))

	ok, err = svc.HasPermission(ctx, 5, rbac.PermViewUsers)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMutationsInvalidateCachedLookups(t *testing.T) {
	svc, repo := newService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 9, rbac.RoleUser))

	_, err := svc.RoleNames(ctx, 9)
	require.NoError(t, err)
	loads := repo.userRoleLoads

	// A second read is served from the cache.
	_, err = svc.RoleNames(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, loads, repo.userRoleLoads)

	// Any catalog or assignment mutation bumps the version: the next read
	// goes back to the store.
	require.NoError(t, svc.SyncRoles(ctx, 9, []string{rbac.RoleManager}))
	names, err := svc.RoleNames(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, []string{rbac.RoleManager}, names)
	require.Greater(t, repo.userRoleLoads, loads)
}

func TestBrokenCacheFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newFakeRepo()
	svc := rbac.NewService(repo, rbac.NewCache(client, time.Hour), nil)

	ctx := context.Background()
	_, err := svc.CreateRole(ctx, rbac.RoleUser, "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 2, rbac.RoleUser))

	mr.Close()

	ok, err := svc.HasRole(ctx, 2, rbac.RoleUser)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGrantUnknownPermissionRejected(t *testing.T) {
	svc, _ := newService(t)
	seedCatalog(t, svc)

	err := svc.GrantPermissions(context.Background(), rbac.RoleUser, []string{"no-such-permission"})
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrUnknownPermission))
}
