package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenhq/warden/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for user management.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPage returns one page of users with their role names.
func (r *Repository) ListPage(ctx context.Context, limit, offset int) ([]UserWithRoles, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.is_active, u.last_login_at, u.email_verified_at, u.created_at, u.updated_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		GROUP BY u.id
		ORDER BY u.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []UserWithRoles
	for rows.Next() {
		var user UserWithRoles
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.IsActive,
			&user.LastLoginAt, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt, &user.Roles); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Count returns the total number of users.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountActive returns the number of active users.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&count)
	return count, err
}

// Get fetches a user by ID with their role names.
func (r *Repository) Get(ctx context.Context, id int64) (UserWithRoles, error) {
	var user UserWithRoles
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.is_active, u.last_login_at, u.email_verified_at, u.created_at, u.updated_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.id = $1
		GROUP BY u.id`, id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.IsActive,
		&user.LastLoginAt, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt, &user.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserWithRoles{}, shared.ErrNotFound
	}
	return user, err
}

// Create inserts a new account. Duplicate emails surface as
// shared.ErrDuplicateEmail and create nothing.
func (r *Repository) Create(ctx context.Context, name, email, passwordHash string, isActive bool) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, is_active, last_login_at, email_verified_at, created_at, updated_at`,
		name, email, passwordHash, isActive,
	).Scan(&user.ID, &user.Name, &user.Email, &user.IsActive,
		&user.LastLoginAt, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt)
	return user, mapUniqueViolation(err)
}

// Update changes name, email and active flag.
func (r *Repository) Update(ctx context.Context, id int64, name, email string, isActive bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $2, email = $3, is_active = $4, updated_at = NOW() WHERE id = $1`,
		id, name, email, isActive)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored credential hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PasswordHash fetches the stored credential hash.
func (r *Repository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return hash, err
}

// Delete removes a user. Role assignments and session rows cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountByRole counts users holding the named role, optionally only active
// ones.
func (r *Repository) CountByRole(ctx context.Context, roleName string, activeOnly bool) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1 AND (NOT $2 OR u.is_active)`,
		roleName, activeOnly).Scan(&count)
	return count, err
}

// CountRecentByRole counts users with the named role created at or after
// the cutoff.
func (r *Repository) CountRecentByRole(ctx context.Context, roleName string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1 AND u.created_at >= $2`,
		roleName, since.UTC()).Scan(&count)
	return count, err
}

// LatestByRole returns the most recently created users holding the role.
func (r *Repository) LatestByRole(ctx context.Context, roleName string, limit int) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.is_active, u.last_login_at, u.email_verified_at, u.created_at, u.updated_at
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1
		ORDER BY u.created_at DESC
		LIMIT $2`, roleName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.IsActive,
			&user.LastLoginAt, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.ErrDuplicateEmail
	}
	return err
}
