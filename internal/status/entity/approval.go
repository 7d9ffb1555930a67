package entity

// ApprovalStatusApproved is the agent_approvals.status value that grants approval.
const ApprovalStatusApproved = "approved"

// Approval is a row in agent_approvals.
type Approval struct {
	ID      int64  `db:"id"`
	AgentID int64  `db:"agent_id"`
	Status  string `db:"status"`
}
