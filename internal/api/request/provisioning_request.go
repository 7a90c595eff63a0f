package request

// SubmitRequest holds the request body for submitting a provisioning request.
// The ID is caller-supplied; resubmitting the same ID is a no-op that returns
// the existing request.
type SubmitRequest struct {
	ID           string         `json:"id" validate:"required,max=128"`
	ResourceKind string         `json:"resource_kind" validate:"required,slug"`
	Attributes   map[string]any `json:"attributes" validate:"required"`
	Requester    string         `json:"requester" validate:"required,max=255"`
}

// Decision holds the request body for an approval decision.
type Decision struct {
	Outcome   string `json:"outcome" validate:"required,oneof=approve deny"`
	DecidedBy string `json:"decided_by" validate:"required,max=255"`
	Comment   string `json:"comment" validate:"max=4096"`
}
