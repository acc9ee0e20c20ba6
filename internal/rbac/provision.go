package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// permissionDescriptions gives every catalog entry a human description for
// the admin listing pages.
var permissionDescriptions = map[string]string{
	PermViewUsers:   "View the user list",
	PermCreateUsers: "Create user accounts",
	PermEditUsers:   "Edit user accounts",
	PermDeleteUsers: "Delete user accounts",

	PermViewRoles:   "View the role list",
	PermCreateRoles: "Create roles",
	PermEditRoles:   "Edit roles",
	PermDeleteRoles: "Delete roles",

	PermViewPermissions:   "View the permission list",
	PermCreatePermissions: "Create permissions",
	PermEditPermissions:   "Edit permissions",
	PermDeletePermissions: "Delete permissions",

	PermAdminAccess:   "Access the admin dashboard",
	PermManagerAccess: "Access the manager dashboard",
	PermUserAccess:    "Access the user dashboard",

	PermEditProfile: "Edit own profile",
	PermViewProfile: "View own profile",

	PermViewSystemInfo: "View system diagnostics",
	PermManageSettings: "Manage application settings",
}

// managerGrants is the subset of the catalog granted to the manager role.
// The admin role receives the full catalog; these lists are the literal
// grant matrix, not a hierarchy.
var managerGrants = []string{
	PermViewUsers,
	PermCreateUsers,
	PermEditUsers,
	PermViewRoles,
	PermManagerAccess,
	PermEditProfile,
	PermViewProfile,
}

var userGrants = []string{
	PermUserAccess,
	PermEditProfile,
	PermViewProfile,
}

// SeedAccount describes one default account created at provisioning time.
type SeedAccount struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// DefaultSeedAccounts returns the three canonical accounts, one per role.
func DefaultSeedAccounts() []SeedAccount {
	return []SeedAccount{
		{Name: "Admin User", Email: "admin@example.com", Password: "password", Role: RoleAdmin},
		{Name: "Manager User", Email: "manager@example.com", Password: "password", Role: RoleManager},
		{Name: "Regular User", Email: "user@example.com", Password: "password", Role: RoleUser},
	}
}

// AccountStore persists seed accounts. pgAccountStore backs it with the
// users table.
type AccountStore interface {
	EnsureAccount(ctx context.Context, account SeedAccount, passwordHash string) (int64, error)
}

// Provisioner bootstraps the permission catalog, the three canonical
// roles, their grants, and the default accounts. Every step upserts, so
// re-running is safe; it finishes with a cache invalidation so previously
// resolved lookups are never served stale.
type Provisioner struct {
	accounts AccountStore
	service  *Service
	logger   *slog.Logger
}

// NewProvisioner constructs a Provisioner storing accounts in Postgres.
func NewProvisioner(pool *pgxpool.Pool, service *Service, logger *slog.Logger) *Provisioner {
	return &Provisioner{accounts: &pgAccountStore{pool: pool}, service: service, logger: logger}
}

// Run executes the full provisioning sequence.
func (p *Provisioner) Run(ctx context.Context) error {
	for _, name := range PermissionCatalog() {
		if _, err := p.service.CreatePermission(ctx, name, permissionDescriptions[name]); err != nil {
			return fmt.Errorf("rbac: provision permission %q: %w", name, err)
		}
	}

	roles := []struct {
		name        string
		description string
		grants      []string
	}{
		{RoleAdmin, "Full access to every capability", PermissionCatalog()},
		{RoleManager, "Limited administrative access", managerGrants},
		{RoleUser, "Basic dashboard access", userGrants},
	}
	for _, role := range roles {
		if _, err := p.service.CreateRole(ctx, role.name, role.description); err != nil {
			return fmt.Errorf("rbac: provision role %q: %w", role.name, err)
		}
		if err := p.service.GrantPermissions(ctx, role.name, role.grants); err != nil {
			return fmt.Errorf("rbac: grant %q: %w", role.name, err)
		}
	}

	for _, account := range DefaultSeedAccounts() {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("rbac: hash credential for %q: %w", account.Email, err)
		}
		userID, err := p.accounts.EnsureAccount(ctx, account, string(hash))
		if err != nil {
			return fmt.Errorf("rbac: provision account %q: %w", account.Email, err)
		}
		if err := p.service.SyncRoles(ctx, userID, []string{account.Role}); err != nil {
			return fmt.Errorf("rbac: assign %q to %q: %w", account.Role, account.Email, err)
		}
		if p.logger != nil {
			p.logger.Info("seed account ready", slog.String("email", account.Email), slog.String("role", account.Role))
		}
	}

	return p.service.InvalidateCache(ctx)
}

type pgAccountStore struct {
	pool *pgxpool.Pool
}

// EnsureAccount returns the existing account for the email or inserts it.
// An existing account keeps its credential.
func (s *pgAccountStore) EnsureAccount(ctx context.Context, account SeedAccount, passwordHash string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, account.Email).Scan(&id)
	if err == nil {
		return id, nil
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, is_active, email_verified_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id`,
		account.Name, account.Email, passwordHash, time.Now().UTC(),
	).Scan(&id)
	return id, err
}
