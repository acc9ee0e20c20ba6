package users

import "time"

// User represents a user account for management screens.
type User struct {
	ID              int64
	Name            string
	Email           string
	IsActive        bool
	LastLoginAt     *time.Time
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserWithRoles pairs a user with their assigned role names for listings.
type UserWithRoles struct {
	User
	Roles []string
}

// Stats aggregates account counts for the dashboards.
type Stats struct {
	Total               int
	Active              int
	RecentRegistrations int
}
