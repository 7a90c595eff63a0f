package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	store "github.com/halvor/provision/internal/activity"
	"github.com/halvor/provision/internal/model"
)

var activityExecutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "activity_executions_total",
		Help: "Total number of activity executions by activity name and result",
	},
	[]string{"activity", "result"},
)

// JournalingInterceptor is a Temporal worker interceptor that appends every
// activity attempt to the invocation journal and wraps untyped activity
// errors with the activity name as the error type, so a failed step shows
// its name in the Temporal UI instead of a generic "ApplicationError".
//
// Journal writes are best-effort: the Temporal event history remains the
// authoritative record, the journal is a queryable projection of it.
type JournalingInterceptor struct {
	interceptor.WorkerInterceptorBase
	journal *store.Store
	logger  zerolog.Logger
}

// NewJournalingInterceptor creates an interceptor writing to the given store.
func NewJournalingInterceptor(journal *store.Store, logger zerolog.Logger) *JournalingInterceptor {
	return &JournalingInterceptor{journal: journal, logger: logger}
}

func (j *JournalingInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &journalingActivityInterceptor{
		ActivityInboundInterceptorBase: interceptor.ActivityInboundInterceptorBase{},
		next:                           next,
		journal:                        j.journal,
		logger:                         j.logger,
	}
}

type journalingActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next    interceptor.ActivityInboundInterceptor
	journal *store.Store
	logger  zerolog.Logger
}

func (j *journalingActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return j.next.Init(outbound)
}

func (j *journalingActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	info := activity.GetInfo(ctx)
	started := time.Now()

	result, err := j.next.ExecuteActivity(ctx, in)

	outcome := "ok"
	var errMsg *string
	if err != nil {
		outcome = "error"
		msg := err.Error()
		errMsg = &msg
	}
	activityExecutionsTotal.WithLabelValues(info.ActivityType.Name, outcome).Inc()

	rec := store.InvocationRecord{
		RequestID:    strings.TrimPrefix(info.WorkflowExecution.ID, model.WorkflowIDPrefix),
		ActivityName: info.ActivityType.Name,
		Attempt:      info.Attempt,
		Error:        errMsg,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if jerr := j.journal.RecordInvocation(ctx, rec); jerr != nil {
		j.logger.Warn().Err(jerr).
			Str("activity", rec.ActivityName).
			Str("request_id", rec.RequestID).
			Msg("failed to journal activity invocation")
	}

	if err != nil {
		// Don't double-wrap errors that already have a type.
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() != "" {
			return result, err
		}
		return result, temporal.NewApplicationError(err.Error(), info.ActivityType.Name, err)
	}
	return result, nil
}
