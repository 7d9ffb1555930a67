package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user/entity"
)

const accountColumns = `id, username, email, email_verified, password_hash, password_algo,
	must_reset_password, status, login_failed_attempts, locked_until, last_login_at,
	user_type, version, created_at, updated_at`

// UserRepo stores marketplace accounts in the users table. Timestamps are
// computed in Go so the same statements run on Postgres and sqlite.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db, now: time.Now} }

// EnsureTable creates users and its indexes (Postgres).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT UNIQUE,
  email TEXT,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  password_hash TEXT,
  password_algo TEXT,
  password_updated_at TIMESTAMPTZ,
  must_reset_password BOOLEAN NOT NULL DEFAULT false,
  status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'locked', 'disabled')),
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  user_type TEXT NOT NULL DEFAULT 'client' CHECK (user_type IN ('agent', 'client')),
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));
CREATE INDEX IF NOT EXISTS idx_users_user_type ON users (user_type);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts u and sets u.ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	if u.Version == 0 {
		u.Version = 1
	}
	q := r.db.Rebind(`INSERT INTO users
  (username, email, email_verified, password_hash, password_algo, must_reset_password, status, user_type, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := r.db.QueryRowxContext(ctx, q,
		u.Username, u.Email, u.EmailVerified, u.PasswordHash, u.PasswordAlgo,
		u.MustResetPassword, u.Status, u.UserType, u.Version,
	).Scan(&u.ID)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// GetByEmail matches email case-insensitively; sql.ErrNoRows when absent.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE lower(email) = lower(?)`, email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(query), arg); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMinimalAuthView loads what token issuance needs.
func (r *UserRepo) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	var v entity.MinimalAuthView
	q := r.db.Rebind(`SELECT id, user_type, version, email, email_verified, status FROM users WHERE id = ?`)
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// IncrementFailedLogin bumps the failure counter and returns its new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id int64) (int, error) {
	q := r.db.Rebind(`UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at = ?
WHERE id = ? RETURNING login_failed_attempts`)
	var n int
	if err := r.db.GetContext(ctx, &n, q, r.now(), id); err != nil {
		return 0, err
	}
	return n, nil
}

// LockIfThreshold locks an active account once its failures reach threshold.
// It reports whether the account was locked by this call.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error) {
	now := r.now()
	q := r.db.Rebind(`UPDATE users SET status = 'locked', locked_until = ?, updated_at = ?
WHERE id = ? AND status = 'active' AND login_failed_attempts >= ? RETURNING id`)
	return r.affectedOne(ctx, q, now.Add(time.Duration(lockMinutes)*time.Minute), now, id, threshold)
}

func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id int64) error {
	now := r.now()
	q := r.db.Rebind(`UPDATE users SET login_failed_attempts = 0, last_login_at = ?, locked_until = NULL, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, now, now, id)
	return err
}

// UnlockIfExpired reactivates a locked account whose lock has run out.
func (r *UserRepo) UnlockIfExpired(ctx context.Context, id int64) (bool, error) {
	now := r.now()
	q := r.db.Rebind(`UPDATE users SET status = 'active', locked_until = NULL, updated_at = ?
WHERE id = ? AND status = 'locked' AND locked_until IS NOT NULL AND locked_until < ? RETURNING id`)
	return r.affectedOne(ctx, q, now, id, now)
}

func (r *UserRepo) affectedOne(ctx context.Context, q string, args ...any) (bool, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePassword stores a new hash and clears the reset flag.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash, algo string) error {
	now := r.now()
	q := r.db.Rebind(`UPDATE users SET password_hash = ?, password_algo = ?, password_updated_at = ?,
  must_reset_password = false, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, hash, algo, now, now, id)
	return err
}
