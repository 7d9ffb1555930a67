package entity

// SubscriptionStatusActive is the agent_subscriptions.status value of a live subscription.
const SubscriptionStatusActive = "active"

// Subscription is a row in agent_subscriptions joined with its tier name.
type Subscription struct {
	ID       int64   `db:"id"`
	AgentID  int64   `db:"agent_id"`
	Status   string  `db:"status"`
	TierID   *int64  `db:"tier_id"`
	TierName *string `db:"tier_name"`
}
