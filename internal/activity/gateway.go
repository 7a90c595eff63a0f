package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.temporal.io/sdk/temporal"

	"github.com/halvor/provision/internal/config"
	"github.com/halvor/provision/internal/model"
	"github.com/halvor/provision/internal/platform"
)

// Gateway contains activities that invoke external tools: the notification,
// approval and provisioning collaborator services. Calls carry an
// Idempotency-Key derived from the request ID and activity name so a retried
// invocation is de-duplicated downstream.
//
// Failure classification follows the tool boundary contract:
//   - 2xx            → success
//   - 4xx            → non-retryable (the call will never succeed as-is)
//   - 5xx / network  → retryable (Temporal retries per the activity policy)
type Gateway struct {
	client         *http.Client
	notifyURL      string
	approvalURL    string
	provisionerURL string
}

// NewGateway creates a new Gateway activity struct.
func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		client:         &http.Client{Timeout: cfg.ToolTimeout},
		notifyURL:      cfg.NotifyURL,
		approvalURL:    cfg.ApprovalURL,
		provisionerURL: cfg.ProvisionerURL,
	}
}

// SendNotificationParams holds parameters for the SendNotification activity.
type SendNotificationParams struct {
	RequestID  string            `json:"request_id"`
	Template   string            `json:"template"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Notification templates.
const (
	TemplateIntakeReceived   = "intake-received"
	TemplateRequestCompleted = "request-completed"
	TemplateRequestRejected  = "request-rejected"
	TemplateRequestFailed    = "request-failed"
)

// SendNotification delivers a templated notification via the notification service.
func (a *Gateway) SendNotification(ctx context.Context, params SendNotificationParams) error {
	return a.invoke(ctx, a.notifyURL+"/api/v1/notifications", params.RequestID, "SendNotification", params, nil)
}

// CheckApprovalParams holds parameters for the CheckApproval activity.
type CheckApprovalParams struct {
	RequestID    string         `json:"request_id"`
	ResourceKind string         `json:"resource_kind"`
	Attributes   map[string]any `json:"attributes"`
	Requester    string         `json:"requester"`
}

// ApprovalCheckResult is the typed result of an automated approval check.
// Outcome is approve, deny or pending; pending means a human has to decide.
type ApprovalCheckResult struct {
	Outcome string `json:"outcome"`
	Comment string `json:"comment,omitempty"`
}

// CheckApproval runs the automated approval check against the approval service.
func (a *Gateway) CheckApproval(ctx context.Context, params CheckApprovalParams) (*ApprovalCheckResult, error) {
	var result ApprovalCheckResult
	if err := a.invoke(ctx, a.approvalURL+"/api/v1/approval-checks", params.RequestID, "CheckApproval", params, &result); err != nil {
		return nil, err
	}
	switch result.Outcome {
	case model.ApprovalApprove, model.ApprovalDeny, model.ApprovalPending:
		return &result, nil
	}
	return nil, temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("approval service returned unknown outcome %q", result.Outcome),
		"BAD_TOOL_RESULT", nil)
}

// ProvisionParams holds parameters for the Provision activity.
type ProvisionParams struct {
	RequestID    string         `json:"request_id"`
	ResourceKind string         `json:"resource_kind"`
	Attributes   map[string]any `json:"attributes"`
}

type provisionResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Provision executes the provisioning action for the request. A transport
// failure is retryable; a failure reported by the provisioner itself is
// non-retryable, with the detail preserved for the requester.
func (a *Gateway) Provision(ctx context.Context, params ProvisionParams) error {
	var result provisionResponse
	if err := a.invoke(ctx, a.provisionerURL+"/api/v1/provision", params.RequestID, "Provision", params, &result); err != nil {
		return err
	}
	if result.Status != "success" {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("provisioning failed: %s", result.Detail),
			"PROVISIONING_FAILURE", nil)
	}
	return nil
}

// invoke POSTs a JSON payload to a tool endpoint and decodes the response
// into out (if non-nil).
func (a *Gateway) invoke(ctx context.Context, url, requestID, activityName string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return temporal.NewNonRetryableApplicationError("marshal tool payload", "MARSHAL_ERROR", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return temporal.NewNonRetryableApplicationError("create tool request", "REQUEST_ERROR", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", platform.IdempotencyKey(requestID, activityName))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("tool POST to %s: %w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("decode tool response from %s", url), "BAD_TOOL_RESULT", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("tool returned %d", resp.StatusCode), "CLIENT_ERROR", nil)
	default:
		return fmt.Errorf("tool returned %d", resp.StatusCode)
	}
}
