package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshRow is one stored refresh session.
type RefreshRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

// RefreshRepo persists refresh sessions by the hash of their token; raw
// tokens never reach the database.
type RefreshRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db, now: time.Now}
}

// EnsureTable creates auth_refresh_sessions (Postgres). Rows go with their user.
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_refresh_sessions (
  id BIGSERIAL PRIMARY KEY,
  token_hash TEXT NOT NULL UNIQUE,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  client_id TEXT NOT NULL DEFAULT '',
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_sessions_user ON auth_refresh_sessions (user_id);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_sessions_expiry ON auth_refresh_sessions (expires_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, tokenHash string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	q := r.db.Rebind(`INSERT INTO auth_refresh_sessions (token_hash, user_id, client_id, expires_at)
VALUES (?, ?, ?, ?) RETURNING id`)
	var id int64
	if err := r.db.QueryRowxContext(ctx, q, tokenHash, userID, clientID, expiresAt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the session for tokenHash or sql.ErrNoRows.
func (r *RefreshRepo) Get(ctx context.Context, tokenHash string) (RefreshRow, error) {
	var row RefreshRow
	q := r.db.Rebind(`SELECT id, user_id, client_id, expires_at FROM auth_refresh_sessions WHERE token_hash = ?`)
	err := r.db.GetContext(ctx, &row, q, tokenHash)
	return row, err
}

// Delete removes the session for tokenHash. sql.ErrNoRows means it was
// already gone, so of two callers racing on one token only one succeeds.
func (r *RefreshRepo) Delete(ctx context.Context, tokenHash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM auth_refresh_sessions WHERE token_hash = ?`), tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many went.
func (r *RefreshRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM auth_refresh_sessions WHERE expires_at < ?`), r.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
