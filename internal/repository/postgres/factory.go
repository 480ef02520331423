package postgres

import (
	"context"

	repo "github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of *pgxpool.Pool the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repositories struct {
	Accounts repo.Accounts
	Payments repo.Payments
	Pinger   repo.Pinger
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Accounts: NewAccounts(pool),
		Payments: NewPayments(pool),
		Pinger:   pool,
	}
}
