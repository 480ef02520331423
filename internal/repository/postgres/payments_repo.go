package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type paymentsRepo struct{ pool Querier }

func NewPayments(pool Querier) repository.Payments {
	return &paymentsRepo{pool: pool}
}

const paymentColumns = `id, account_id, session_id, event_id, package_id, amount_total, credits, status, created_at`

func (r *paymentsRepo) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE session_id=$1)`, sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("payment exists: %w", err)
	}
	return exists, nil
}

func (r *paymentsRepo) Append(ctx context.Context, rec models.PaymentRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.ID, rec.AccountID, rec.SessionID, rec.EventID, rec.PackageID, rec.AmountTotal, rec.Credits, rec.Status,
	)
	if err != nil {
		return false, fmt.Errorf("append payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentsRepo) GetBySessionID(ctx context.Context, sessionID string) (models.PaymentRecord, error) {
	rec, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE session_id=$1`, sessionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PaymentRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return models.PaymentRecord{}, fmt.Errorf("get payment: %w", err)
	}
	return rec, nil
}

func (r *paymentsRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+`
		   FROM payments
		  WHERE account_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []models.PaymentRecord{}
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.SessionID, &rec.EventID, &rec.PackageID,
		&rec.AmountTotal, &rec.Credits, &rec.Status, &rec.CreatedAt)
	return rec, err
}
