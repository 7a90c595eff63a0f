package model

import "time"

// Resource kinds known to the provisioner. The column is an open string so
// new kinds can be added without a migration; these are the ones the
// provisioning service currently handles.
const (
	ResourceKindMSSQLAccount = "mssql-account"
	ResourceKindADAccount    = "ad-account"
)

// ProvisioningRequest is one account-provisioning request. The ID is
// caller-supplied and doubles as the workflow instance key; resubmitting the
// same ID returns the stored request without starting a second workflow.
type ProvisioningRequest struct {
	ID            string         `json:"id" db:"id"`
	ResourceKind  string         `json:"resource_kind" db:"resource_kind"`
	Attributes    map[string]any `json:"attributes" db:"attributes"`
	Requester     string         `json:"requester" db:"requester"`
	Status        string         `json:"status" db:"status"`
	StatusMessage *string        `json:"status_message,omitempty" db:"status_message"`
	RejectReason  *string        `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty" db:"decided_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}
