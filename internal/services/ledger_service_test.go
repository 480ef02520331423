package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/repository/memory"
)

func TestLedgerService(t *testing.T) {
	ctx := context.Background()
	accounts, pays := memory.NewAccounts(), memory.NewPayments()
	_, err := accounts.Create(ctx, "u1", 600)
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		_, err := pays.Append(ctx, models.PaymentRecord{
			AccountID: "u1",
			SessionID: fmt.Sprintf("sess_%d", i),
			Credits:   10,
			Status:    models.PaymentCompleted,
		})
		require.NoError(t, err)
	}
	svc := NewLedgerService(accounts, pays)

	acc, err := svc.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), acc.Credits)

	_, err = svc.Account(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	recs, err := svc.Payments(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, recs, defaultPageSize)

	recs, err = svc.Payments(ctx, "u1", 1000, 50)
	require.NoError(t, err)
	assert.Len(t, recs, 10)

	rec, err := svc.Payment(ctx, "sess_7")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.AccountID)
}
