package rbac

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/wardenhq/warden/internal/shared"
)

// seedRepo is an in-memory RepositoryPort for provisioning tests.
type seedRepo struct {
	nextID    int64
	roles     map[string]Role
	perms     map[string]Permission
	grants    map[int64]map[int64]bool
	userRoles map[int64][]int64
}

func newSeedRepo() *seedRepo {
	return &seedRepo{
		roles:     make(map[string]Role),
		perms:     make(map[string]Permission),
		grants:    make(map[int64]map[int64]bool),
		userRoles: make(map[int64][]int64),
	}
}

func (r *seedRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	if existing, ok := r.roles[name]; ok {
		existing.Description = description
		r.roles[name] = existing
		return existing, nil
	}
	r.nextID++
	role := Role{ID: r.nextID, Name: name, Description: description}
	r.roles[name] = role
	return role, nil
}

func (r *seedRepo) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	if existing, ok := r.perms[name]; ok {
		existing.Description = description
		r.perms[name] = existing
		return existing, nil
	}
	r.nextID++
	perm := Permission{ID: r.nextID, Name: name, Description: description}
	r.perms[name] = perm
	return perm, nil
}

func (r *seedRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *seedRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *seedRepo) CountRoles(ctx context.Context) (int, error) { return len(r.roles), nil }

func (r *seedRepo) ListRolesPage(ctx context.Context, limit, offset int) ([]RoleWithPermissions, error) {
	return nil, nil
}

func (r *seedRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, perm := range r.perms {
		out = append(out, perm)
	}
	return out, nil
}

func (r *seedRepo) CountPermissions(ctx context.Context) (int, error) { return len(r.perms), nil }

func (r *seedRepo) ListPermissionsPage(ctx context.Context, limit, offset int) ([]Permission, error) {
	return nil, nil
}

func (r *seedRepo) RoleNameSet(ctx context.Context) ([]string, error) {
	var out []string
	for name := range r.roles {
		out = append(out, name)
	}
	return out, nil
}

func (r *seedRepo) PermissionNameSet(ctx context.Context) ([]string, error) {
	var out []string
	for name := range r.perms {
		out = append(out, name)
	}
	return out, nil
}

func (r *seedRepo) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if r.grants[roleID] == nil {
		r.grants[roleID] = make(map[int64]bool)
	}
	r.grants[roleID][permissionID] = true
	return nil
}

func (r *seedRepo) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	delete(r.grants[roleID], permissionID)
	return nil
}

func (r *seedRepo) PermissionNamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	var out []string
	for _, perm := range r.perms {
		if r.grants[roleID][perm.ID] {
			out = append(out, perm.Name)
		}
	}
	return out, nil
}

func (r *seedRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	r.userRoles[userID] = append(r.userRoles[userID], roleID)
	return nil
}

func (r *seedRepo) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	r.userRoles[userID] = slices.Clone(roleIDs)
	return nil
}

func (r *seedRepo) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	var out []string
	for _, role := range r.roles {
		if slices.Contains(r.userRoles[userID], role.ID) {
			out = append(out, role.Name)
		}
	}
	return out, nil
}

func (r *seedRepo) PermissionNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, roleID := range r.userRoles[userID] {
		for _, perm := range r.perms {
			if r.grants[roleID][perm.ID] && !seen[perm.Name] {
				seen[perm.Name] = true
				out = append(out, perm.Name)
			}
		}
	}
	return out, nil
}

// fakeAccounts records seed account upserts in memory.
type fakeAccounts struct {
	nextID  int64
	byEmail map[string]int64
	hashes  map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byEmail: make(map[string]int64), hashes: make(map[string]string)}
}

func (f *fakeAccounts) EnsureAccount(ctx context.Context, account SeedAccount, passwordHash string) (int64, error) {
	if id, ok := f.byEmail[account.Email]; ok {
		return id, nil
	}
	f.nextID++
	f.byEmail[account.Email] = f.nextID
	f.hashes[account.Email] = passwordHash
	return f.nextID, nil
}

func TestPermissionDescriptionsCoverCatalog(t *testing.T) {
	for _, name := range PermissionCatalog() {
		if permissionDescriptions[name] == "" {
			t.Errorf("permission %q has no description", name)
		}
	}
	if len(permissionDescriptions) != len(PermissionCatalog()) {
		t.Errorf("descriptions for %d permissions, catalog has %d", len(permissionDescriptions), len(PermissionCatalog()))
	}
}

func TestGrantMatrixUsesKnownPermissions(t *testing.T) {
	catalog := PermissionCatalog()
	for _, name := range managerGrants {
		if !slices.Contains(catalog, name) {
			t.Errorf("manager grant %q not in catalog", name)
		}
	}
	for _, name := range userGrants {
		if !slices.Contains(catalog, name) {
			t.Errorf("user grant %q not in catalog", name)
		}
	}
}

func TestDefaultSeedAccountsOnePerRole(t *testing.T) {
	accounts := DefaultSeedAccounts()
	if len(accounts) != 3 {
		t.Fatalf("expected 3 seed accounts, got %d", len(accounts))
	}
	seen := make(map[string]bool)
	for _, account := range accounts {
		if account.Email == "" || account.Password == "" {
			t.Errorf("account %q missing credentials", account.Name)
		}
		if seen[account.Role] {
			t.Errorf("role %q seeded twice", account.Role)
		}
		seen[account.Role] = true
	}
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !seen[role] {
			t.Errorf("no seed account for role %q", role)
		}
	}
}

func TestProvisionerRunSeedsCatalogRolesAndAccounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newSeedRepo()
	accounts := newFakeAccounts()
	p := &Provisioner{
		accounts: accounts,
		service:  NewService(repo, NewCache(client, time.Hour), nil),
	}
	ctx := context.Background()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	catalog := PermissionCatalog()
	if len(repo.perms) != len(catalog) {
		t.Errorf("expected %d permissions, got %d", len(catalog), len(repo.perms))
	}
	if len(repo.roles) != 3 {
		t.Errorf("expected 3 roles, got %d", len(repo.roles))
	}
	if len(accounts.byEmail) != 3 {
		t.Errorf("expected 3 seed accounts, got %d", len(accounts.byEmail))
	}

	adminGrants, err := repo.PermissionNamesForRole(ctx, repo.roles[RoleAdmin].ID)
	if err != nil {
		t.Fatalf("admin grants: %v", err)
	}
	if len(adminGrants) != len(catalog) {
		t.Errorf("admin should hold the full catalog, got %d of %d", len(adminGrants), len(catalog))
	}
	managerPerms, _ := repo.PermissionNamesForRole(ctx, repo.roles[RoleManager].ID)
	if len(managerPerms) != len(managerGrants) {
		t.Errorf("manager grants: expected %d, got %d", len(managerGrants), len(managerPerms))
	}

	for _, account := range DefaultSeedAccounts() {
		userID := accounts.byEmail[account.Email]
		roles, err := repo.RoleNamesForUser(ctx, userID)
		if err != nil {
			t.Fatalf("roles for %q: %v", account.Email, err)
		}
		if len(roles) != 1 || roles[0] != account.Role {
			t.Errorf("account %q should hold exactly role %q, got %v", account.Email, account.Role, roles)
		}
	}

	hash := accounts.hashes["admin@example.com"]
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("password")); err != nil {
		t.Errorf("seed credential does not verify: %v", err)
	}

	version, err := mr.Get("rbac:version")
	if err != nil || version == "0" || version == "" {
		t.Errorf("cache version not bumped after provisioning, got %q (%v)", version, err)
	}
}

func TestProvisionerRunIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newSeedRepo()
	accounts := newFakeAccounts()
	p := &Provisioner{
		accounts: accounts,
		service:  NewService(repo, NewCache(client, time.Hour), nil),
	}
	ctx := context.Background()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstHash := accounts.hashes["user@example.com"]

	if err := p.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(repo.roles) != 3 || len(repo.perms) != len(PermissionCatalog()) || len(accounts.byEmail) != 3 {
		t.Errorf("second run changed counts: %d roles, %d perms, %d accounts",
			len(repo.roles), len(repo.perms), len(accounts.byEmail))
	}
	if accounts.hashes["user@example.com"] != firstHash {
		t.Error("second run must not rewrite an existing credential")
	}
}
