package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
)

// RoleAssigner binds a registration to its initial role. The rbac service
// satisfies it.
type RoleAssigner interface {
	SyncRoles(ctx context.Context, userID int64, roleNames []string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	roles RoleAssigner
}

// NewService constructs a new Service.
func NewService(repo Repository, roles RoleAssigner) *Service {
	return &Service{repo: repo, roles: roles}
}

// Authenticate validates email/password credentials. Unknown emails,
// wrong passwords, and deactivated accounts all collapse to
// ErrInvalidCredentials; a deactivated user is refused even with a
// correct credential. A successful login stamps the user's last-login
// metadata.
func (s *Service) Authenticate(ctx context.Context, email, password, ip string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if err := s.repo.RecordLogin(ctx, user.ID, now, ip); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	user.LastLoginIP = ip
	return user, nil
}

// Register creates an account with the basic "user" role assigned.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, name, email, string(hash))
	if err != nil {
		return nil, err
	}
	if err := s.roles.SyncRoles(ctx, user.ID, []string{rbac.RoleUser}); err != nil {
		return nil, err
	}
	return user, nil
}

// ResolvePrincipal loads the active account behind a session user ID for
// the access-control middleware.
func (s *Service) ResolvePrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	user, err := s.repo.FindActiveByID(ctx, userID)
	if err != nil {
		return rbac.Principal{}, err
	}
	return rbac.Principal{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

// RegisterSession persists the session audit row.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session audit row.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

var _ rbac.PrincipalResolver = (*Service)(nil)
