package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/halvor/provision/internal/activity"
	"github.com/halvor/provision/internal/model"
)

// ProvisionParams holds parameters for AccountProvisioningWorkflow. The
// retry/timeout tunables are captured at submission time so that a config
// change never alters the behavior of an already-running instance on replay.
type ProvisionParams struct {
	RequestID string `json:"request_id"`

	ApprovalTimeout      time.Duration `json:"approval_timeout"`
	ApprovalCheckTimeout time.Duration `json:"approval_check_timeout"`

	ProvisionMaxAttempts          int32         `json:"provision_max_attempts"`
	ProvisionRetryInitialInterval time.Duration `json:"provision_retry_initial_interval"`
	ProvisionRetryMaxInterval     time.Duration `json:"provision_retry_max_interval"`
}

// AccountProvisioningWorkflow drives one provisioning request to a terminal
// state: intake notification, approval gate, provisioning, completion
// notification — strictly in that order. Each transition is backed by exactly
// one activity result; the approval gate is a durable wait on a decision
// signal, a withdraw signal, or the approval timer, whichever comes first.
func AccountProvisioningWorkflow(ctx workflow.Context, params ProvisionParams) error {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var req model.ProvisioningRequest
	err := workflow.ExecuteActivity(ctx, "GetRequest", params.RequestID).Get(ctx, &req)
	if err != nil {
		_ = markRequestFailed(ctx, params.RequestID, err)
		return err
	}

	// Intake notification. Completes the submitted state.
	err = workflow.ExecuteActivity(ctx, "SendNotification", activity.SendNotificationParams{
		RequestID:  req.ID,
		Template:   activity.TemplateIntakeReceived,
		Recipients: []string{req.Requester},
		Subject:    fmt.Sprintf("Provisioning request %s received", req.ID),
	}).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		return err
	}

	err = workflow.ExecuteActivity(ctx, "UpdateRequestStatus", activity.UpdateRequestStatusParams{
		RequestID: req.ID,
		Status:    model.StatusPendingApproval,
	}).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		return err
	}

	outcome := awaitApproval(ctx, params, req)

	if outcome != model.ApprovalApprove {
		reason := rejectReason(outcome)
		err = workflow.ExecuteActivity(ctx, "RecordDecision", activity.RecordDecisionParams{
			RequestID:    req.ID,
			Status:       model.StatusRejected,
			RejectReason: &reason,
		}).Get(ctx, nil)
		if err != nil {
			_ = markRequestFailed(ctx, req.ID, err)
			return err
		}
		notifyRequester(ctx, req, activity.TemplateRequestRejected, "Provisioning request rejected: "+reason)
		return nil
	}

	err = workflow.ExecuteActivity(ctx, "RecordDecision", activity.RecordDecisionParams{
		RequestID: req.ID,
		Status:    model.StatusApproved,
	}).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		return err
	}

	err = workflow.ExecuteActivity(ctx, "UpdateRequestStatus", activity.UpdateRequestStatusParams{
		RequestID: req.ID,
		Status:    model.StatusProvisioning,
	}).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		return err
	}

	provisionCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    params.ProvisionMaxAttempts,
			InitialInterval:    params.ProvisionRetryInitialInterval,
			MaximumInterval:    params.ProvisionRetryMaxInterval,
			BackoffCoefficient: 2.0,
		},
	})
	err = workflow.ExecuteActivity(provisionCtx, "Provision", activity.ProvisionParams{
		RequestID:    req.ID,
		ResourceKind: req.ResourceKind,
		Attributes:   req.Attributes,
	}).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		notifyRequester(ctx, req, activity.TemplateRequestFailed, "Provisioning request "+req.ID+" failed")
		return err
	}

	err = workflow.ExecuteActivity(ctx, "CompleteRequest", req.ID).Get(ctx, nil)
	if err != nil {
		_ = markRequestFailed(ctx, req.ID, err)
		return err
	}

	// Completion notification. The request is already terminal; a delivery
	// failure here is logged but does not fail the workflow.
	notifyRequester(ctx, req, activity.TemplateRequestCompleted, "Provisioning request "+req.ID+" completed")

	logger.Info("provisioning request completed", "request_id", req.ID)
	return nil
}

// awaitApproval resolves the approval gate. The automated check runs first;
// a pending result suspends the workflow on a durable wait for a decision
// signal, a withdraw signal, or the approval timer. Returns the approval
// outcome, or a reject reason when the gate closes without an approval.
func awaitApproval(ctx workflow.Context, params ProvisionParams, req model.ProvisioningRequest) string {
	logger := workflow.GetLogger(ctx)

	checkCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    30 * time.Second,
		ScheduleToCloseTimeout: params.ApprovalCheckTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})

	var check activity.ApprovalCheckResult
	err := workflow.ExecuteActivity(checkCtx, "CheckApproval", activity.CheckApprovalParams{
		RequestID:    req.ID,
		ResourceKind: req.ResourceKind,
		Attributes:   req.Attributes,
		Requester:    req.Requester,
	}).Get(ctx, &check)
	if err != nil {
		// The automated check is advisory. If it is unavailable the request
		// falls through to the human decision gate instead of failing.
		logger.Warn("approval check unavailable, waiting for manual decision",
			"request_id", req.ID, "error", err)
		check.Outcome = model.ApprovalPending
	}

	if check.Outcome != model.ApprovalPending {
		return check.Outcome
	}

	approvalCh := workflow.GetSignalChannel(ctx, model.ApprovalSignalName)
	withdrawCh := workflow.GetSignalChannel(ctx, model.WithdrawSignalName)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, params.ApprovalTimeout)

	for {
		var decision model.ApprovalDecision
		outcome := ""

		selector := workflow.NewSelector(ctx)
		selector.AddReceive(approvalCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &decision)
			outcome = decision.Outcome
		})
		selector.AddReceive(withdrawCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
			outcome = model.RejectReasonWithdrawn
		})
		selector.AddFuture(timer, func(workflow.Future) {
			outcome = model.RejectReasonTimeout
		})
		selector.Select(ctx)

		switch outcome {
		case model.ApprovalApprove, model.ApprovalDeny,
			model.RejectReasonWithdrawn, model.RejectReasonTimeout:
			cancelTimer()
			return outcome
		}

		// Malformed or pending decision signal: keep waiting.
		logger.Warn("ignoring approval signal with invalid outcome",
			"request_id", req.ID, "outcome", decision.Outcome)
	}
}

// rejectReason maps a non-approve gate outcome to the recorded reject
// reason. Timeout and withdrawn outcomes already are reject reasons.
func rejectReason(outcome string) string {
	if outcome == model.ApprovalDeny {
		return model.RejectReasonDenied
	}
	return outcome
}
