package model

import "time"

// ActivityInvocation is one journaled attempt of one workflow activity.
// Temporal's event history is the authoritative record; this table is a
// queryable projection of it for the status API.
type ActivityInvocation struct {
	ID           int64      `json:"id" db:"id"`
	RequestID    string     `json:"request_id" db:"request_id"`
	ActivityName string     `json:"activity_name" db:"activity_name"`
	Attempt      int32      `json:"attempt" db:"attempt"`
	Error        *string    `json:"error,omitempty" db:"error"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
