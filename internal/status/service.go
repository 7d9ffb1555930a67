// Package status derives agent approval and subscription status for the
// current session. Lookup failures are logged and degrade to a negative status;
// they are never returned to callers.
//
// The HTTP handlers build a checker per request over a session.Static. Tracker
// follows a session.Store and suits long-lived embedders only.
package status

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/status/entity"
)

// ApprovalStatus reports whether the current agent has been approved.
type ApprovalStatus struct {
	IsApproved bool `json:"isApproved"`
	Loading    bool `json:"loading"`
}

// SubscriptionStatus reports the current agent's active subscription.
type SubscriptionStatus struct {
	HasActiveSubscription bool    `json:"hasActiveSubscription"`
	CurrentTier           *string `json:"currentTier"`
	Loading               bool    `json:"loading"`
}

// ApprovalLookup finds the approved record of an agent; nil when none.
type ApprovalLookup interface {
	FindApproved(ctx context.Context, agentID string) (*entity.Approval, error)
}

// SubscriptionLookup finds the active subscription of an agent; nil when none.
type SubscriptionLookup interface {
	FindActive(ctx context.Context, agentID string) (*entity.Subscription, error)
}

// agentKey returns the agent id of the session, or false when the session is
// not an agent and no lookup applies.
func agentKey(src session.Source) (string, bool) {
	k, ok := src.Current().Key()
	if !ok || k.UserType != session.UserTypeAgent {
		return "", false
	}
	return k.ID, true
}

type ApprovalChecker struct {
	src    session.Source
	repo   ApprovalLookup
	logger *zap.SugaredLogger
}

func NewApprovalChecker(src session.Source, repo ApprovalLookup, logger *zap.SugaredLogger) *ApprovalChecker {
	return &ApprovalChecker{src: src, repo: repo, logger: logger}
}

// Check resolves the terminal approval status of the current identity.
func (c *ApprovalChecker) Check(ctx context.Context) ApprovalStatus {
	agentID, ok := agentKey(c.src)
	if !ok {
		return ApprovalStatus{}
	}
	rec, err := c.repo.FindApproved(ctx, agentID)
	if err != nil {
		c.logger.Errorw("approval lookup failed", "agent_id", agentID, "err", err)
		return ApprovalStatus{}
	}
	return ApprovalStatus{IsApproved: rec != nil}
}

// Refetch is Check, for callers re-validating after a state change.
func (c *ApprovalChecker) Refetch(ctx context.Context) ApprovalStatus {
	return c.Check(ctx)
}

type SubscriptionChecker struct {
	src    session.Source
	repo   SubscriptionLookup
	logger *zap.SugaredLogger
}

func NewSubscriptionChecker(src session.Source, repo SubscriptionLookup, logger *zap.SugaredLogger) *SubscriptionChecker {
	return &SubscriptionChecker{src: src, repo: repo, logger: logger}
}

// Check resolves the terminal subscription status of the current identity.
func (c *SubscriptionChecker) Check(ctx context.Context) SubscriptionStatus {
	agentID, ok := agentKey(c.src)
	if !ok {
		return SubscriptionStatus{}
	}
	rec, err := c.repo.FindActive(ctx, agentID)
	if err != nil {
		c.logger.Errorw("subscription lookup failed", "agent_id", agentID, "err", err)
		return SubscriptionStatus{}
	}
	if rec == nil {
		return SubscriptionStatus{}
	}
	return SubscriptionStatus{HasActiveSubscription: true, CurrentTier: rec.TierName}
}

func (c *SubscriptionChecker) Refetch(ctx context.Context) SubscriptionStatus {
	return c.Check(ctx)
}
