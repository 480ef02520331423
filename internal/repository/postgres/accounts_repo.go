package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/jackc/pgx/v5"
)

type accountsRepo struct{ pool Querier }

func NewAccounts(pool Querier) repository.Accounts {
	return &accountsRepo{pool: pool}
}

func (r *accountsRepo) FindByIdentity(ctx context.Context, identity string) (models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx,
		`SELECT identity, credits, created_at, updated_at
		   FROM accounts
		  WHERE identity=$1`,
		identity,
	).Scan(&a.Identity, &a.Credits, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// Create relies on the primary key for concurrency control. A losing
// concurrent insert gets no row back and reports ErrConflict.
func (r *accountsRepo) Create(ctx context.Context, identity string, initialCredits int64) (models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts(identity, credits, created_at, updated_at)
		 VALUES($1, $2, now(), now())
		 ON CONFLICT (identity) DO NOTHING
		 RETURNING identity, credits, created_at, updated_at`,
		identity, initialCredits,
	).Scan(&a.Identity, &a.Credits, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repository.ErrConflict
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (r *accountsRepo) IncrementCredits(ctx context.Context, identity string, delta int64) (models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx,
		`UPDATE accounts
		    SET credits = credits + $2,
		        updated_at = now()
		  WHERE identity = $1
		  RETURNING identity, credits, created_at, updated_at`,
		identity, delta,
	).Scan(&a.Identity, &a.Credits, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("increment credits: %w", err)
	}
	return a, nil
}
