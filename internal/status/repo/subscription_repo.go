package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/status/entity"
)

// SubscriptionRepo reads agent subscriptions and their tiers.
type SubscriptionRepo struct {
	db *sqlx.DB
}

func NewSubscriptionRepo(db *sqlx.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// EnsureTable creates subscription_tiers and agent_subscriptions if not exists (Postgres).
func (r *SubscriptionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS subscription_tiers (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  max_listings INT,
  price_cents BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS agent_subscriptions (
  id BIGSERIAL PRIMARY KEY,
  agent_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  tier_id BIGINT REFERENCES subscription_tiers(id),
  status TEXT NOT NULL DEFAULT 'pending',
  current_period_end TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agent_subscriptions_agent_status ON agent_subscriptions(agent_id, status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindActive returns the active subscription of agentID with its tier name,
// nil when there is none.
func (r *SubscriptionRepo) FindActive(ctx context.Context, agentID string) (*entity.Subscription, error) {
	q := r.db.Rebind(`SELECT s.id, s.agent_id, s.status, s.tier_id, t.name AS tier_name
		FROM agent_subscriptions s
		LEFT JOIN subscription_tiers t ON t.id = s.tier_id
		WHERE s.agent_id = ? AND s.status = ?
		LIMIT 2`)
	var rows []entity.Subscription
	if err := r.db.SelectContext(ctx, &rows, q, agentID, entity.SubscriptionStatusActive); err != nil {
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
