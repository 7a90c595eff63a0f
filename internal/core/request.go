package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/halvor/provision/internal/api/request"
	"github.com/halvor/provision/internal/config"
	"github.com/halvor/provision/internal/model"
	"github.com/halvor/provision/internal/workflow"
)

const taskQueue = "provisioning-tasks"

// ErrNotPending is returned when a decision or withdrawal targets a request
// whose approval gate is no longer open.
var ErrNotPending = errors.New("request is not awaiting approval")

type RequestService struct {
	db  DB
	tc  temporalclient.Client
	cfg *config.Config
}

func NewRequestService(db DB, tc temporalclient.Client, cfg *config.Config) *RequestService {
	return &RequestService{db: db, tc: tc, cfg: cfg}
}

// Submit records a provisioning request and starts its workflow. The ID is
// caller-supplied; resubmitting an ID that already exists changes nothing and
// returns the stored request, so clients can safely retry a lost response.
// Exactly one workflow instance exists per ID regardless of how often it is
// submitted. Returns true when the request was newly created.
func (s *RequestService) Submit(ctx context.Context, req *model.ProvisioningRequest) (bool, error) {
	now := time.Now()
	req.Status = model.StatusSubmitted
	req.CreatedAt = now
	req.UpdatedAt = now

	tag, err := s.db.Exec(ctx,
		`INSERT INTO provisioning_requests (id, resource_kind, attributes, requester, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		req.ID, req.ResourceKind, req.Attributes, req.Requester, req.Status,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert provisioning request: %w", err)
	}

	created := tag.RowsAffected() == 1
	if !created {
		existing, err := s.GetByID(ctx, req.ID)
		if err != nil {
			return false, fmt.Errorf("load existing request %s: %w", req.ID, err)
		}
		*req = *existing
	}

	// The start is issued on every submit, not just the creating one. If a
	// previous submit committed the row but crashed before the start, the
	// retry picks the workflow up here; RejectDuplicate keeps a finished
	// instance from ever re-running, and an already-started error just means
	// someone else won the race.
	wfID := model.WorkflowIDPrefix + req.ID
	_, err = s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:                    wfID,
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, "AccountProvisioningWorkflow", workflow.ProvisionParams{
		RequestID:                     req.ID,
		ApprovalTimeout:               s.cfg.ApprovalTimeout,
		ApprovalCheckTimeout:          s.cfg.ApprovalCheckTimeout,
		ProvisionMaxAttempts:          int32(s.cfg.ProvisionMaxAttempts),
		ProvisionRetryInitialInterval: s.cfg.ProvisionRetryInitialInterval,
		ProvisionRetryMaxInterval:     s.cfg.ProvisionRetryMaxInterval,
	})
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &alreadyStarted) {
		return false, fmt.Errorf("start AccountProvisioningWorkflow: %w", err)
	}

	return created, nil
}

func (s *RequestService) GetByID(ctx context.Context, id string) (*model.ProvisioningRequest, error) {
	var r model.ProvisioningRequest
	err := s.db.QueryRow(ctx,
		`SELECT id, resource_kind, attributes, requester, status, status_message, reject_reason,
		        created_at, updated_at, decided_at, completed_at
		 FROM provisioning_requests WHERE id = $1`, id,
	).Scan(&r.ID, &r.ResourceKind, &r.Attributes, &r.Requester, &r.Status,
		&r.StatusMessage, &r.RejectReason, &r.CreatedAt, &r.UpdatedAt,
		&r.DecidedAt, &r.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("get provisioning request %s: %w", id, err)
	}
	return &r, nil
}

func (s *RequestService) List(ctx context.Context, params request.Pagination) ([]model.ProvisioningRequest, bool, error) {
	query := `SELECT id, resource_kind, attributes, requester, status, status_message, reject_reason,
	                 created_at, updated_at, decided_at, completed_at
	          FROM provisioning_requests`
	args := []any{}
	argIdx := 1
	where := ""

	if params.Status != "" {
		where = fmt.Sprintf(` WHERE status = $%d`, argIdx)
		args = append(args, params.Status)
		argIdx++
	}
	if params.Cursor != "" {
		if where == "" {
			where = fmt.Sprintf(` WHERE id > $%d`, argIdx)
		} else {
			where += fmt.Sprintf(` AND id > $%d`, argIdx)
		}
		args = append(args, params.Cursor)
		argIdx++
	}

	query += where
	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, params.Limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list provisioning requests: %w", err)
	}
	defer rows.Close()

	var requests []model.ProvisioningRequest
	for rows.Next() {
		var r model.ProvisioningRequest
		if err := rows.Scan(&r.ID, &r.ResourceKind, &r.Attributes, &r.Requester, &r.Status,
			&r.StatusMessage, &r.RejectReason, &r.CreatedAt, &r.UpdatedAt,
			&r.DecidedAt, &r.CompletedAt); err != nil {
			return nil, false, fmt.Errorf("scan provisioning request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate provisioning requests: %w", err)
	}

	hasMore := len(requests) > params.Limit
	if hasMore {
		requests = requests[:params.Limit]
	}
	return requests, hasMore, nil
}

// Decide delivers an approval decision to the request's workflow. The gate
// only accepts a decision while the request is awaiting one; a decision on a
// decided or terminal request returns ErrNotPending.
func (s *RequestService) Decide(ctx context.Context, id string, decision model.ApprovalDecision) error {
	req, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != model.StatusPendingApproval {
		return fmt.Errorf("request %s is %s: %w", id, req.Status, ErrNotPending)
	}

	err = s.tc.SignalWorkflow(ctx, model.WorkflowIDPrefix+id, "", model.ApprovalSignalName, decision)
	if err != nil {
		return fmt.Errorf("signal approval decision for %s: %w", id, err)
	}
	return nil
}

// Withdraw pulls a request back before it is decided. Like Decide, it is only
// valid while the approval gate is open.
func (s *RequestService) Withdraw(ctx context.Context, id string) error {
	req, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != model.StatusSubmitted && req.Status != model.StatusPendingApproval {
		return fmt.Errorf("request %s is %s: %w", id, req.Status, ErrNotPending)
	}

	err = s.tc.SignalWorkflow(ctx, model.WorkflowIDPrefix+id, "", model.WithdrawSignalName, nil)
	if err != nil {
		return fmt.Errorf("signal withdraw for %s: %w", id, err)
	}
	return nil
}

// ListInvocations returns the journaled activity attempts for one request,
// oldest first.
func (s *RequestService) ListInvocations(ctx context.Context, requestID string) ([]model.ActivityInvocation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, request_id, activity_name, attempt, error, started_at, finished_at
		 FROM activity_invocations WHERE request_id = $1 ORDER BY id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invocations for %s: %w", requestID, err)
	}
	defer rows.Close()

	var invocations []model.ActivityInvocation
	for rows.Next() {
		var inv model.ActivityInvocation
		if err := rows.Scan(&inv.ID, &inv.RequestID, &inv.ActivityName, &inv.Attempt,
			&inv.Error, &inv.StartedAt, &inv.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}
