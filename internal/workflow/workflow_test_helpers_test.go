package workflow

import (
	"time"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/halvor/provision/internal/activity"
	"github.com/halvor/provision/internal/model"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types can be deserialized correctly
// by the Temporal test framework. In unit tests, all activities are mocked via
// OnActivity, but the framework still needs the type information for proper
// serialization/deserialization of activity parameters and return values.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Store{})
	env.RegisterActivity(&activity.Gateway{})
}

func testParams(requestID string) ProvisionParams {
	return ProvisionParams{
		RequestID:                     requestID,
		ApprovalTimeout:               72 * time.Hour,
		ApprovalCheckTimeout:          2 * time.Minute,
		ProvisionMaxAttempts:          3,
		ProvisionRetryInitialInterval: time.Second,
		ProvisionRetryMaxInterval:     10 * time.Second,
	}
}

func testRequest(id string) *model.ProvisioningRequest {
	return &model.ProvisioningRequest{
		ID:           id,
		ResourceKind: model.ResourceKindMSSQLAccount,
		Attributes:   map[string]any{"database": "crm", "role": "readonly"},
		Requester:    "alice@example.com",
		Status:       model.StatusSubmitted,
	}
}

// matchNotification returns a mock.MatchedBy matcher for
// SendNotificationParams that checks the request ID and template.
func matchNotification(requestID, template string) interface{} {
	return mock.MatchedBy(func(params activity.SendNotificationParams) bool {
		return params.RequestID == requestID &&
			params.Template == template &&
			len(params.Recipients) == 1
	})
}

// matchFailed returns a mock.MatchedBy matcher for MarkRequestFailedParams
// that checks the request ID and that a failure message is set. The exact
// message includes Temporal activity error wrapping that is not predictable
// in tests.
func matchFailed(requestID string) interface{} {
	return mock.MatchedBy(func(params activity.MarkRequestFailedParams) bool {
		return params.RequestID == requestID && params.Message != ""
	})
}
