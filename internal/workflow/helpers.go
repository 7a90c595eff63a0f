package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/halvor/provision/internal/activity"
	"github.com/halvor/provision/internal/model"
)

// markRequestFailed is a helper to move a request to failed with the error
// preserved as the failure detail. It returns any error but callers
// typically ignore it since the primary error is more important.
func markRequestFailed(ctx workflow.Context, requestID string, err error) error {
	return workflow.ExecuteActivity(ctx, "MarkRequestFailed", activity.MarkRequestFailedParams{
		RequestID: requestID,
		Message:   err.Error(),
	}).Get(ctx, nil)
}

// notifyRequester sends a terminal-state notification to the requester.
// It is best-effort: delivery failures are logged but never change the
// outcome of an already-decided request.
func notifyRequester(ctx workflow.Context, req model.ProvisioningRequest, template, subject string) {
	err := workflow.ExecuteActivity(ctx, "SendNotification", activity.SendNotificationParams{
		RequestID:  req.ID,
		Template:   template,
		Recipients: []string{req.Requester},
		Subject:    subject,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("requester notification failed",
			"request_id", req.ID,
			"template", template,
			"error", err)
	}
}
