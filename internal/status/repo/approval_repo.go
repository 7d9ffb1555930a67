package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/status/entity"
)

// ErrMultipleRows is returned when a lookup expecting at most one row finds more.
var ErrMultipleRows = errors.New("multiple rows returned")

// ApprovalRepo reads agent approval records.
type ApprovalRepo struct {
	db *sqlx.DB
}

func NewApprovalRepo(db *sqlx.DB) *ApprovalRepo {
	return &ApprovalRepo{db: db}
}

// EnsureTable creates agent_approvals if not exists (Postgres).
func (r *ApprovalRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS agent_approvals (
  id BIGSERIAL PRIMARY KEY,
  agent_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'pending',
  reviewed_by BIGINT,
  reviewed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agent_approvals_agent_status ON agent_approvals(agent_id, status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindApproved returns the approved record of agentID, nil when there is none.
func (r *ApprovalRepo) FindApproved(ctx context.Context, agentID string) (*entity.Approval, error) {
	q := r.db.Rebind(`SELECT id, agent_id, status FROM agent_approvals WHERE agent_id = ? AND status = ? LIMIT 2`)
	var rows []entity.Approval
	if err := r.db.SelectContext(ctx, &rows, q, agentID, entity.ApprovalStatusApproved); err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, ErrMultipleRows
	}
}
