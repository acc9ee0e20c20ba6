package auth

import "time"

// User represents a persisted user account.
type User struct {
	ID              int64
	Name            string
	Email           string
	PasswordHash    string
	IsActive        bool
	LastLoginAt     *time.Time
	LastLoginIP     string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
