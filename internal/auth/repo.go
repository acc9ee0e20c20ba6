package auth

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

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindActiveByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)
	RecordLogin(ctx context.Context, userID int64, at time.Time, ip string) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, is_active, last_login_at, last_login_ip, email_verified_at, created_at, updated_at`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindActiveByID fetches an active user by ID. Deactivated accounts are
// indistinguishable from missing ones.
func (r *PGRepository) FindActiveByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active`, id)
	return scanUser(row)
}

// CreateUser inserts a registration. A duplicate email surfaces as
// shared.ErrDuplicateEmail without creating a row.
func (r *PGRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING `+userColumns,
		name, email, passwordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, shared.ErrDuplicateEmail
		}
		return nil, err
	}
	return user, nil
}

// RecordLogin stamps the last successful login.
func (r *PGRepository) RecordLogin(ctx context.Context, userID int64, at time.Time, ip string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $2, last_login_ip = $3, updated_at = NOW() WHERE id = $1`,
		userID, at.UTC(), ip)
	return err
}

// CreateSession persists a login session row for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, ip, ua) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		 ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, userID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session audit row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var lastLoginIP *string
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsActive,
		&user.LastLoginAt, &lastLoginIP, &user.EmailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLoginIP != nil {
		user.LastLoginIP = *lastLoginIP
	}
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
