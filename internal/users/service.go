package users

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wardenhq/warden/internal/shared"
)

// RepositoryPort defines data access methods for user management.
type RepositoryPort interface {
	ListPage(ctx context.Context, limit, offset int) ([]UserWithRoles, error)
	Count(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
	Get(ctx context.Context, id int64) (UserWithRoles, error)
	Create(ctx context.Context, name, email, passwordHash string, isActive bool) (User, error)
	Update(ctx context.Context, id int64, name, email string, isActive bool) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	PasswordHash(ctx context.Context, id int64) (string, error)
	Delete(ctx context.Context, id int64) error
	CountByRole(ctx context.Context, roleName string, activeOnly bool) (int, error)
	CountRecentByRole(ctx context.Context, roleName string, since time.Time) (int, error)
	LatestByRole(ctx context.Context, roleName string, limit int) ([]User, error)
}

// RoleSyncer replaces a user's role assignments wholesale. The rbac
// service satisfies it.
type RoleSyncer interface {
	SyncRoles(ctx context.Context, userID int64, roleNames []string) error
}

// AuditRecorder persists admin mutation trails. shared.AuditLogger
// satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CreateInput carries a validated create-user submission.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	IsActive bool
}

// UpdateInput carries a validated edit-user submission. An empty Password
// leaves the credential untouched.
type UpdateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	IsActive bool
}

// Service handles user management business logic.
type Service struct {
	repo   RepositoryPort
	roles  RoleSyncer
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, roles RoleSyncer, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

// ListPage returns one page of users plus pagination metadata.
func (s *Service) ListPage(ctx context.Context, page, perPage int) ([]UserWithRoles, shared.Pagination, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	users, err := s.repo.ListPage(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, pagination, nil
}

// Get fetches one user with roles.
func (s *Service) Get(ctx context.Context, id int64) (UserWithRoles, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an account with exactly one role assigned.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, input.Name, input.Email, string(hash), input.IsActive)
	if err != nil {
		return User{}, err
	}
	if err := s.roles.SyncRoles(ctx, user.ID, []string{input.Role}); err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.create", user.ID, map[string]any{"email": user.Email, "role": input.Role})
	return user, nil
}

// Update edits an account. The role assignment is replaced wholesale with
// the submitted role; a non-empty password resets the credential.
func (s *Service) Update(ctx context.Context, actorID, id int64, input UpdateInput) error {
	if err := s.repo.Update(ctx, id, input.Name, input.Email, input.IsActive); err != nil {
		return err
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
			return err
		}
	}
	if err := s.roles.SyncRoles(ctx, id, []string{input.Role}); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.update", id, map[string]any{"email": input.Email, "role": input.Role})
	return nil
}

// Delete removes an account. Deleting yourself is a business-rule
// violation: the call fails with shared.ErrSelfDelete and the record is
// left untouched.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return shared.ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	return nil
}

// UpdateProfile lets a user edit their own name and email.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, email string) error {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, name, email, user.IsActive)
}

// ChangePassword verifies the current credential before storing the new
// one. A wrong current password is a business-rule failure, not an
// authorization failure.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	hash, err := s.repo.PasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)); err != nil {
		return shared.ErrWrongPassword
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, string(newHash))
}

// Stats returns account totals for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	active, err := s.repo.CountActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, Active: active}, nil
}

// RoleStats returns totals scoped to one role for the manager dashboard.
func (s *Service) RoleStats(ctx context.Context, roleName string, recentWindow time.Duration) (Stats, error) {
	total, err := s.repo.CountByRole(ctx, roleName, false)
	if err != nil {
		return Stats{}, err
	}
	active, err := s.repo.CountByRole(ctx, roleName, true)
	if err != nil {
		return Stats{}, err
	}
	recent, err := s.repo.CountRecentByRole(ctx, roleName, time.Now().Add(-recentWindow))
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, Active: active, RecentRegistrations: recent}, nil
}

// LatestByRole returns the newest accounts holding the role.
func (s *Service) LatestByRole(ctx context.Context, roleName string, limit int) ([]User, error) {
	return s.repo.LatestByRole(ctx, roleName, limit)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
