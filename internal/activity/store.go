package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.temporal.io/sdk/temporal"

	"github.com/halvor/provision/internal/model"
)

// DB is the subset of pgxpool.Pool used by the store activities.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store contains activities that read from and update the request database.
// All writes are idempotent: a retried activity re-applies the same
// transition as a no-op, and timestamps are set at most once.
type Store struct {
	db DB
}

// NewStore creates a new Store activity struct.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetRequest retrieves a provisioning request by its ID.
func (a *Store) GetRequest(ctx context.Context, id string) (*model.ProvisioningRequest, error) {
	var r model.ProvisioningRequest
	err := a.db.QueryRow(ctx,
		`SELECT id, resource_kind, attributes, requester, status, status_message, reject_reason,
		        created_at, updated_at, decided_at, completed_at
		 FROM provisioning_requests WHERE id = $1`, id,
	).Scan(&r.ID, &r.ResourceKind, &r.Attributes, &r.Requester, &r.Status, &r.StatusMessage,
		&r.RejectReason, &r.CreatedAt, &r.UpdatedAt, &r.DecidedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("request %s not found", id), "NOT_FOUND", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &r, nil
}

// UpdateRequestStatusParams holds the parameters for UpdateRequestStatus.
type UpdateRequestStatusParams struct {
	RequestID     string  `json:"request_id"`
	Status        string  `json:"status"`
	StatusMessage *string `json:"status_message,omitempty"`
}

// UpdateRequestStatus moves a request to a new status. Only forward
// transitions are applied; re-applying the current status is a no-op so the
// activity is safe under retry. A backward or out-of-terminal transition is
// a non-retryable error since retrying can never make it valid.
func (a *Store) UpdateRequestStatus(ctx context.Context, params UpdateRequestStatusParams) error {
	var current string
	err := a.db.QueryRow(ctx,
		"SELECT status FROM provisioning_requests WHERE id = $1", params.RequestID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("get request %s status: %w", params.RequestID, err)
	}

	if current == params.Status {
		return nil
	}
	if !model.CanTransition(current, params.Status) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid status transition %s -> %s for request %s", current, params.Status, params.RequestID),
			"INVALID_TRANSITION", nil)
	}

	_, err = a.db.Exec(ctx,
		`UPDATE provisioning_requests
		 SET status = $1, status_message = $2, updated_at = now()
		 WHERE id = $3`,
		params.Status, params.StatusMessage, params.RequestID,
	)
	if err != nil {
		return fmt.Errorf("update request %s status: %w", params.RequestID, err)
	}
	return nil
}

// RecordDecisionParams holds the parameters for RecordDecision.
type RecordDecisionParams struct {
	RequestID    string  `json:"request_id"`
	Status       string  `json:"status"`
	RejectReason *string `json:"reject_reason,omitempty"`
}

// RecordDecision records the approval outcome. decided_at is set exactly
// once; a retried activity leaves the original decision timestamp intact.
func (a *Store) RecordDecision(ctx context.Context, params RecordDecisionParams) error {
	var current string
	err := a.db.QueryRow(ctx,
		"SELECT status FROM provisioning_requests WHERE id = $1", params.RequestID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("get request %s status: %w", params.RequestID, err)
	}
	if current == params.Status {
		return nil
	}
	if !model.CanTransition(current, params.Status) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid status transition %s -> %s for request %s", current, params.Status, params.RequestID),
			"INVALID_TRANSITION", nil)
	}

	_, err = a.db.Exec(ctx,
		`UPDATE provisioning_requests
		 SET status = $1, reject_reason = $2, decided_at = COALESCE(decided_at, now()), updated_at = now()
		 WHERE id = $3`,
		params.Status, params.RejectReason, params.RequestID,
	)
	if err != nil {
		return fmt.Errorf("record decision for request %s: %w", params.RequestID, err)
	}
	return nil
}

// CompleteRequest marks a request as completed. completed_at is set exactly
// once, a retry against an already-completed row is a no-op, and a row that
// reached any other terminal state is left untouched.
func (a *Store) CompleteRequest(ctx context.Context, requestID string) error {
	var current string
	err := a.db.QueryRow(ctx,
		"SELECT status FROM provisioning_requests WHERE id = $1", requestID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("get request %s status: %w", requestID, err)
	}
	if current == model.StatusCompleted {
		return nil
	}
	if !model.CanTransition(current, model.StatusCompleted) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid status transition %s -> %s for request %s", current, model.StatusCompleted, requestID),
			"INVALID_TRANSITION", nil)
	}

	_, err = a.db.Exec(ctx,
		`UPDATE provisioning_requests
		 SET status = $1, completed_at = COALESCE(completed_at, now()), updated_at = now()
		 WHERE id = $2`,
		model.StatusCompleted, requestID,
	)
	if err != nil {
		return fmt.Errorf("complete request %s: %w", requestID, err)
	}
	return nil
}

// MarkRequestFailedParams holds the parameters for MarkRequestFailed.
type MarkRequestFailedParams struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// MarkRequestFailed moves a request to the terminal failed status, preserving
// the failure detail for the requester. A row that already reached a terminal
// state is never rewritten: retrying failed is a no-op, and a completed or
// rejected row stays as recorded.
func (a *Store) MarkRequestFailed(ctx context.Context, params MarkRequestFailedParams) error {
	var current string
	err := a.db.QueryRow(ctx,
		"SELECT status FROM provisioning_requests WHERE id = $1", params.RequestID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("get request %s status: %w", params.RequestID, err)
	}
	if current == model.StatusFailed {
		return nil
	}
	if !model.CanTransition(current, model.StatusFailed) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid status transition %s -> %s for request %s", current, model.StatusFailed, params.RequestID),
			"INVALID_TRANSITION", nil)
	}

	_, err = a.db.Exec(ctx,
		`UPDATE provisioning_requests
		 SET status = $1, status_message = $2, updated_at = now()
		 WHERE id = $3`,
		model.StatusFailed, params.Message, params.RequestID,
	)
	if err != nil {
		return fmt.Errorf("mark request %s failed: %w", params.RequestID, err)
	}
	return nil
}
