package entity

import "time"

// User represents an account row in the `users` table.
// UserType is the marketplace account kind: agent or client.
type User struct {
	ID                  int64      `db:"id"`
	Username            *string    `db:"username"`
	Email               *string    `db:"email"`
	EmailVerified       bool       `db:"email_verified"`
	PasswordHash        *string    `db:"password_hash"`
	PasswordAlgo        *string    `db:"password_algo"`
	MustResetPassword   bool       `db:"must_reset_password"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	UserType            *string    `db:"user_type"`
	Version             int64      `db:"version"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// MinimalAuthView is the minimal projection required for token claim hydration.
type MinimalAuthView struct {
	ID            int64   `db:"id" json:"id"`
	UserType      *string `db:"user_type" json:"user_type"`
	Version       int64   `db:"version" json:"version"`
	Email         *string `db:"email" json:"email"`
	EmailVerified bool    `db:"email_verified" json:"email_verified"`
	Status        string  `db:"status" json:"-"`
}
