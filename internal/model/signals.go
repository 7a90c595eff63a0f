package model

// WorkflowIDPrefix prefixes the request ID to form the workflow instance ID.
// One workflow instance exists per request ID; starting a second one for the
// same ID attaches to the first.
const WorkflowIDPrefix = "provision-"

// Signal names consumed by the account provisioning workflow.
const (
	ApprovalSignalName = "approval-decision"
	WithdrawSignalName = "withdraw"
)

// Approval outcomes.
const (
	ApprovalApprove = "approve"
	ApprovalDeny    = "deny"
	ApprovalPending = "pending"
)

// Reject reasons recorded when a request ends up rejected.
const (
	RejectReasonDenied    = "denied"
	RejectReasonTimeout   = "timeout"
	RejectReasonWithdrawn = "withdrawn"
)

// ApprovalDecision is the payload of the approval-decision signal.
type ApprovalDecision struct {
	Outcome   string `json:"outcome"`
	DecidedBy string `json:"decided_by,omitempty"`
	Comment   string `json:"comment,omitempty"`
}
