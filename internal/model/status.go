package model

// Request status constants.
const (
	StatusSubmitted       = "submitted"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusProvisioning    = "provisioning"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
)

// statusSuccessors is the full transition table. Every non-terminal state
// may fail; everything else follows the single forward path through the
// approval gate and provisioning. Terminal states have no successors.
var statusSuccessors = map[string]map[string]bool{
	StatusSubmitted: {
		StatusPendingApproval: true,
		StatusFailed:          true,
	},
	StatusPendingApproval: {
		StatusApproved: true,
		StatusRejected: true,
		StatusFailed:   true,
	},
	StatusApproved: {
		StatusProvisioning: true,
		StatusFailed:       true,
	},
	StatusProvisioning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the transition table permits moving from one
// status to another. Same-status updates are allowed (idempotent
// re-application under activity retry), except out of a terminal state.
func CanTransition(from, to string) bool {
	if from == to {
		_, known := statusSuccessors[from]
		return known
	}
	return statusSuccessors[from][to]
}
