package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"
	temporalmocks "go.temporal.io/sdk/mocks"

	"github.com/halvor/provision/internal/api/request"
	"github.com/halvor/provision/internal/config"
	"github.com/halvor/provision/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		ApprovalTimeout:               72 * time.Hour,
		ApprovalCheckTimeout:          2 * time.Minute,
		ProvisionMaxAttempts:          5,
		ProvisionRetryInitialInterval: 5 * time.Second,
		ProvisionRetryMaxInterval:     5 * time.Minute,
	}
}

// requestRow returns a mockRow scanning a full provisioning_requests row with
// the given ID and status.
func requestRow(id, status string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = model.ResourceKindMSSQLAccount
		*(dest[2].(*map[string]any)) = map[string]any{"database": "crm", "role": "readonly"}
		*(dest[3].(*string)) = "alice@example.com"
		*(dest[4].(*string)) = status
		*(dest[7].(*time.Time)) = time.Now()
		*(dest[8].(*time.Time)) = time.Now()
		return nil
	}}
}

func scanRequestRow(id, status string) func(dest ...any) error {
	return requestRow(id, status).scanFunc
}

func TestNewRequestService(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	cfg := testConfig()
	svc := NewRequestService(db, tc, cfg)

	require.NotNil(t, svc)
	assert.Equal(t, db, svc.db)
	assert.Equal(t, tc, svc.tc)
	assert.Equal(t, cfg, svc.cfg)
}

// ---------- Submit ----------

func TestRequestService_Submit_CreatesAndStartsWorkflow(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	req := &model.ProvisioningRequest{
		ID:           "req-1",
		ResourceKind: model.ResourceKindMSSQLAccount,
		Attributes:   map[string]any{"database": "crm"},
		Requester:    "alice@example.com",
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	wfRun := &temporalmocks.WorkflowRun{}
	tc.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(opts temporalclient.StartWorkflowOptions) bool {
			return opts.ID == "provision-req-1" && opts.TaskQueue == taskQueue
		}),
		"AccountProvisioningWorkflow", mock.Anything).Return(wfRun, nil)

	created, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusSubmitted, req.Status)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Submit_DuplicateReturnsExisting(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	req := &model.ProvisioningRequest{
		ID:           "req-1",
		ResourceKind: model.ResourceKindMSSQLAccount,
		Attributes:   map[string]any{"database": "crm"},
		Requester:    "alice@example.com",
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusPendingApproval))

	// The duplicate submit still issues a start; the server rejecting it as
	// already started is success, not an error surfaced to the caller.
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "AccountProvisioningWorkflow", mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-1"))

	created, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.StatusPendingApproval, req.Status)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Submit_RetryAfterStartFailure(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	req := &model.ProvisioningRequest{
		ID:           "req-1",
		ResourceKind: model.ResourceKindMSSQLAccount,
		Attributes:   map[string]any{"database": "crm"},
		Requester:    "alice@example.com",
	}

	// First submit: row committed, workflow start fails.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "AccountProvisioningWorkflow", mock.Anything).
		Return(nil, errors.New("temporal down")).Once()

	_, err := svc.Submit(ctx, req)
	require.Error(t, err)

	// Retry with the same ID: the insert is a no-op but the start must be
	// attempted again, otherwise the request is stranded without a workflow.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusSubmitted))
	wfRun := &temporalmocks.WorkflowRun{}
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "AccountProvisioningWorkflow", mock.Anything).
		Return(wfRun, nil).Once()

	created, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	tc.AssertNumberOfCalls(t, "ExecuteWorkflow", 2)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Submit_InsertError(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	req := &model.ProvisioningRequest{ID: "req-1"}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := svc.Submit(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert provisioning request")
	db.AssertExpectations(t)
}

func TestRequestService_Submit_WorkflowError(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	req := &model.ProvisioningRequest{ID: "req-1"}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal down"))

	_, err := svc.Submit(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start AccountProvisioningWorkflow")
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

// ---------- GetByID ----------

func TestRequestService_GetByID_Success(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusCompleted))

	req, err := svc.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, model.StatusCompleted, req.Status)
	assert.Equal(t, "alice@example.com", req.Requester)
	db.AssertExpectations(t)
}

func TestRequestService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	_, err := svc.GetByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	db.AssertExpectations(t)
}

// ---------- List ----------

func TestRequestService_List_PageAndHasMore(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	rows := newMockRows(
		scanRequestRow("req-1", model.StatusCompleted),
		scanRequestRow("req-2", model.StatusPendingApproval),
		scanRequestRow("req-3", model.StatusSubmitted),
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	requests, hasMore, err := svc.List(ctx, request.Pagination{Limit: 2})
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, requests, 2)
	assert.Equal(t, "req-1", requests[0].ID)
	assert.Equal(t, "req-2", requests[1].ID)
	db.AssertExpectations(t)
}

func TestRequestService_List_StatusFilter(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "WHERE status = $1")
	}), []any{model.StatusPendingApproval, 51}).Return(newEmptyMockRows(), nil)

	requests, hasMore, err := svc.List(ctx, request.Pagination{
		Limit:  50,
		Status: model.StatusPendingApproval,
	})
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, requests)
	db.AssertExpectations(t)
}

func TestRequestService_List_CursorFilter(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "WHERE id > $1")
	}), []any{"req-5", 51}).Return(newEmptyMockRows(), nil)

	_, _, err := svc.List(ctx, request.Pagination{Limit: 50, Cursor: "req-5"})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ---------- Decide ----------

func TestRequestService_Decide_SignalsWorkflow(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	decision := model.ApprovalDecision{Outcome: model.ApprovalApprove, DecidedBy: "bob@example.com"}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusPendingApproval))
	tc.On("SignalWorkflow", mock.Anything, "provision-req-1", "", model.ApprovalSignalName, decision).
		Return(nil)

	err := svc.Decide(ctx, "req-1", decision)
	require.NoError(t, err)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Decide_NotPending(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusCompleted))

	err := svc.Decide(ctx, "req-1", model.ApprovalDecision{Outcome: model.ApprovalApprove})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPending)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Decide_SignalError(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusPendingApproval))
	tc.On("SignalWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("temporal down"))

	err := svc.Decide(ctx, "req-1", model.ApprovalDecision{Outcome: model.ApprovalDeny})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal approval decision")
	tc.AssertExpectations(t)
}

// ---------- Withdraw ----------

func TestRequestService_Withdraw_SignalsWorkflow(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusPendingApproval))
	tc.On("SignalWorkflow", mock.Anything, "provision-req-1", "", model.WithdrawSignalName, nil).
		Return(nil)

	err := svc.Withdraw(ctx, "req-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

func TestRequestService_Withdraw_AfterDecision(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(requestRow("req-1", model.StatusProvisioning))

	err := svc.Withdraw(ctx, "req-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPending)
	db.AssertExpectations(t)
	tc.AssertExpectations(t)
}

// ---------- ListInvocations ----------

func TestRequestService_ListInvocations_Success(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	errMsg := "approval service returned 503"
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*int64)) = 1
			*(dest[1].(*string)) = "req-1"
			*(dest[2].(*string)) = "CheckApproval"
			*(dest[3].(*int32)) = 1
			*(dest[4].(**string)) = &errMsg
			*(dest[5].(*time.Time)) = time.Now()
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*int64)) = 2
			*(dest[1].(*string)) = "req-1"
			*(dest[2].(*string)) = "CheckApproval"
			*(dest[3].(*int32)) = 2
			*(dest[5].(*time.Time)) = time.Now()
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"req-1"}).Return(rows, nil)

	invocations, err := svc.ListInvocations(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, invocations, 2)
	assert.Equal(t, "CheckApproval", invocations[0].ActivityName)
	require.NotNil(t, invocations[0].Error)
	assert.Equal(t, errMsg, *invocations[0].Error)
	assert.Nil(t, invocations[1].Error)
	assert.Equal(t, int32(2), invocations[1].Attempt)
	db.AssertExpectations(t)
}

func TestRequestService_ListInvocations_Empty(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := NewRequestService(db, tc, testConfig())
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newEmptyMockRows(), nil)

	invocations, err := svc.ListInvocations(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, invocations)
	db.AssertExpectations(t)
}
