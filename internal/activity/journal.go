package activity

import (
	"context"
	"fmt"
	"time"
)

// InvocationRecord is one completed activity attempt to be journaled.
type InvocationRecord struct {
	RequestID    string
	ActivityName string
	Attempt      int32
	Error        *string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// RecordInvocation appends one activity attempt to the invocation journal.
// The journal is append-only; each physical attempt gets its own row, so the
// at-least-once execution of every step stays inspectable from the API.
func (a *Store) RecordInvocation(ctx context.Context, rec InvocationRecord) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO activity_invocations (request_id, activity_name, attempt, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.RequestID, rec.ActivityName, rec.Attempt, rec.Error, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record invocation %s for request %s: %w", rec.ActivityName, rec.RequestID, err)
	}
	return nil
}
