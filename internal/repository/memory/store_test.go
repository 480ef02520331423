package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccounts_CreateConflict(t *testing.T) {
	s := NewAccounts()
	ctx := context.Background()

	a, err := s.Create(ctx, "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Credits)

	_, err = s.Create(ctx, "u1", 5)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.FindByIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Credits)
}

func TestAccounts_IncrementMissing(t *testing.T) {
	s := NewAccounts()
	_, err := s.IncrementCredits(context.Background(), "nobody", 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccounts_ConcurrentIncrements(t *testing.T) {
	s := NewAccounts()
	ctx := context.Background()
	_, err := s.Create(ctx, "u1", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementCredits(ctx, "u1", 2)
		}()
	}
	wg.Wait()

	a, err := s.FindByIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Credits)
}

func TestPayments_AppendDedup(t *testing.T) {
	s := NewPayments()
	ctx := context.Background()
	rec := models.PaymentRecord{AccountID: "u1", SessionID: "sess_1", Credits: 500, AmountTotal: 2500, Status: models.PaymentCompleted}

	inserted, err := s.Append(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Append(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, s.Len())

	ok, err := s.ExistsBySessionID(ctx, "sess_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPayments_ListByAccountPaging(t *testing.T) {
	s := NewPayments()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, sid := range []string{"a", "b", "c"} {
		_, err := s.Append(ctx, models.PaymentRecord{
			AccountID: "u1", SessionID: sid, Credits: 1, Status: models.PaymentCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, models.PaymentRecord{AccountID: "u2", SessionID: "d", Credits: 1})
	require.NoError(t, err)

	page, err := s.ListByAccount(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].SessionID)
	assert.Equal(t, "b", page[1].SessionID)

	page, err = s.ListByAccount(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].SessionID)

	page, err = s.ListByAccount(ctx, "u1", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
