package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/halvor/provision/internal/config"
)

// DB is the subset of pgxpool.Pool the services use. Kept as an interface so
// tests can run against a mock instead of a live database.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Services struct {
	Request *RequestService
}

func NewServices(db DB, tc temporalclient.Client, cfg *config.Config) *Services {
	return &Services{
		Request: NewRequestService(db, tc, cfg),
	}
}
