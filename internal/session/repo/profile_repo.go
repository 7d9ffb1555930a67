package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

// ProfileRepo reads and writes the profiles table.
type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// EnsureTable creates the profiles table if not exists (Postgres).
func (r *ProfileRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS profiles (
  user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  full_name TEXT,
  role TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles(role);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindByUserID returns the profile for userID, or nil when none exists.
func (r *ProfileRepo) FindByUserID(ctx context.Context, userID string) (*session.Profile, error) {
	q := r.db.Rebind(`SELECT user_id, full_name, role FROM profiles WHERE user_id = ?`)
	var p session.Profile
	if err := r.db.GetContext(ctx, &p, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a profile row.
func (r *ProfileRepo) Create(ctx context.Context, userID int64, fullName *string, role string) error {
	q := r.db.Rebind(`INSERT INTO profiles (user_id, full_name, role) VALUES (?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, userID, fullName, role)
	return err
}
