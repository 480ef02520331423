package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baharkarakas/travel-credits/internal/idempotency"
	"github.com/baharkarakas/travel-credits/internal/models"
	repo "github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/repository/memory"
	"github.com/baharkarakas/travel-credits/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	accounts *memory.Accounts
	payments *memory.Payments
	guard    *idempotency.MemoryGuard
	rec      *CreditReconciler
}

func newFixture() fixture {
	f := fixture{
		accounts: memory.NewAccounts(),
		payments: memory.NewPayments(),
		guard:    idempotency.NewMemoryGuard(time.Minute, time.Hour),
	}
	f.rec = NewCreditReconciler(f.accounts, f.payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: DefaultWelcomeBonus})
	return f
}

func grant(account, session string, credits, amount int64) CreditGrant {
	return CreditGrant{EventID: "evt_" + session, SessionID: session, AccountID: account, Credits: credits, AmountTotal: amount}
}

func balance(t *testing.T, a repo.Accounts, id string) int64 {
	t.Helper()
	acc, err := a.FindByIdentity(context.Background(), id)
	require.NoError(t, err)
	return acc.Credits
}

func TestApply_NewAccountGetsWelcomeBonus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.rec.Apply(ctx, grant("u1", "sess_1", 500, 2500))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.Created)
	assert.True(t, res.Audited)
	assert.Equal(t, int64(600), res.Account.Credits)
	assert.Equal(t, int64(600), balance(t, f.accounts, "u1"))

	rec, err := f.payments.GetBySessionID(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.AccountID)
	assert.Equal(t, int64(500), rec.Credits)
	assert.Equal(t, int64(2500), rec.AmountTotal)
	assert.Equal(t, models.PaymentCompleted, rec.Status)
	assert.Equal(t, "evt_sess_1", rec.EventID)
}

func TestApply_ExistingAccountIncrements(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.accounts.Create(ctx, "u1", 40)
	require.NoError(t, err)

	res, err := f.rec.Apply(ctx, grant("u1", "sess_1", 10, 100))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, int64(50), balance(t, f.accounts, "u1"))
}

func TestApply_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := grant("u1", "sess_1", 500, 2500)

	_, err := f.rec.Apply(ctx, g)
	require.NoError(t, err)

	res, err := f.rec.Apply(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int64(600), balance(t, f.accounts, "u1"))
	assert.Equal(t, 1, f.payments.Len())
}

func TestApply_RedeliveryAfterAuditLossIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	payments := &flakyPayments{Payments: f.payments, failAppends: 1}
	rec := NewCreditReconciler(f.accounts, payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})
	g := grant("u1", "sess_1", 500, 2500)

	res, err := rec.Apply(ctx, g)
	require.NoError(t, err)
	assert.False(t, res.Audited)

	// no payment record, but the guard remembers the session
	res, err = rec.Apply(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int64(600), balance(t, f.accounts, "u1"))
}

func TestApply_MalformedGrantLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		g    CreditGrant
	}{
		{"missing account", grant("", "sess_1", 5, 10)},
		{"zero credits", grant("u1", "sess_1", 0, 10)},
		{"negative credits", grant("u1", "sess_1", -3, 10)},
		{"negative amount", grant("u1", "sess_1", 5, -1)},
		{"credits above cap", grant("u1", "sess_1", 1_000_000_001, 10)},
		{"credits at int64 max", grant("u1", "sess_1", math.MaxInt64, 10)},
		{"missing session", grant("u1", "", 5, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.rec.Apply(context.Background(), tt.g)
			assert.ErrorIs(t, err, ErrMalformedEvent)
			assert.Equal(t, 0, f.accounts.Len())
			assert.Equal(t, 0, f.payments.Len())
		})
	}
}

func TestApply_ConcurrentGrantsAreAdditive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.accounts.Create(ctx, "u1", 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.rec.Apply(ctx, grant("u1", fmt.Sprintf("sess_%d", i), int64(i+1), 100))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 1000 + (1 + 2 + ... + 20)
	assert.Equal(t, int64(1210), balance(t, f.accounts, "u1"))
	assert.Equal(t, 20, f.payments.Len())
}

func TestApply_ConcurrentFirstPurchases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, c := range []int64{300, 700} {
		wg.Add(1)
		go func(c int64) {
			defer wg.Done()
			_, err := f.rec.Apply(ctx, grant("new", fmt.Sprintf("sess_%d", c), c, c))
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, f.accounts.Len())
	assert.Equal(t, int64(100+300+700), balance(t, f.accounts, "new"))
}

// racingAccounts reports the account as missing on the first lookup and
// creates it behind the caller's back, forcing the create conflict path.
type racingAccounts struct {
	*memory.Accounts
	once sync.Once
}

func (r *racingAccounts) FindByIdentity(ctx context.Context, id string) (models.Account, error) {
	var raced bool
	r.once.Do(func() {
		_, _ = r.Accounts.Create(ctx, id, 100+250)
		raced = true
	})
	if raced {
		return models.Account{}, repo.ErrNotFound
	}
	return r.Accounts.FindByIdentity(ctx, id)
}

func TestApply_CreateConflictFallsBackToIncrement(t *testing.T) {
	f := newFixture()
	accounts := &racingAccounts{Accounts: f.accounts}
	rec := NewCreditReconciler(accounts, f.payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})

	res, err := rec.Apply(context.Background(), grant("u1", "sess_2", 400, 100))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1, f.accounts.Len())
	assert.Equal(t, int64(100+250+400), balance(t, f.accounts, "u1"))
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) FindByIdentity(ctx context.Context, id string) (models.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Account), args.Error(1)
}

func (m *MockAccounts) Create(ctx context.Context, id string, initial int64) (models.Account, error) {
	args := m.Called(ctx, id, initial)
	return args.Get(0).(models.Account), args.Error(1)
}

func (m *MockAccounts) IncrementCredits(ctx context.Context, id string, delta int64) (models.Account, error) {
	args := m.Called(ctx, id, delta)
	return args.Get(0).(models.Account), args.Error(1)
}

func TestApply_StoreFailureIsRetryable(t *testing.T) {
	f := newFixture()
	ma := new(MockAccounts)
	ma.On("FindByIdentity", mock.Anything, "u1").Return(models.Account{Identity: "u1"}, nil)
	ma.On("IncrementCredits", mock.Anything, "u1", int64(5)).Return(models.Account{}, errors.New("connection reset")).Once()
	ma.On("IncrementCredits", mock.Anything, "u1", int64(5)).Return(models.Account{Identity: "u1", Credits: 5}, nil).Once()
	rec := NewCreditReconciler(ma, f.payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})
	g := grant("u1", "sess_1", 5, 10)

	_, err := rec.Apply(context.Background(), g)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, 0, f.payments.Len())

	// the claim was released so the gateway retry goes through
	res, err := rec.Apply(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, f.payments.Len())
	ma.AssertExpectations(t)
}

func TestApply_CreateFailureIsRetryable(t *testing.T) {
	f := newFixture()
	ma := new(MockAccounts)
	ma.On("FindByIdentity", mock.Anything, "u1").Return(models.Account{}, repo.ErrNotFound)
	ma.On("Create", mock.Anything, "u1", int64(105)).Return(models.Account{}, errors.New("timeout"))
	rec := NewCreditReconciler(ma, f.payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})

	_, err := rec.Apply(context.Background(), grant("u1", "sess_1", 5, 10))
	require.Error(t, err)
	ma.AssertExpectations(t)
}

func TestApply_AccountVanishingEveryAttempt(t *testing.T) {
	f := newFixture()
	ma := new(MockAccounts)
	ma.On("FindByIdentity", mock.Anything, "u1").Return(models.Account{Identity: "u1"}, nil)
	ma.On("IncrementCredits", mock.Anything, "u1", int64(5)).Return(models.Account{}, repo.ErrNotFound)
	rec := NewCreditReconciler(ma, f.payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})

	_, err := rec.Apply(context.Background(), grant("u1", "sess_1", 5, 10))
	assert.ErrorIs(t, err, ErrContention)
	ma.AssertNumberOfCalls(t, "IncrementCredits", maxGrantAttempts)
}

func TestApply_InFlightSessionIsRetryable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	st, err := f.guard.Claim(ctx, "sess_1")
	require.NoError(t, err)
	require.Equal(t, idempotency.Acquired, st)

	_, err = f.rec.Apply(ctx, grant("u1", "sess_1", 5, 10))
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, 0, f.accounts.Len())
}

func TestApply_PaymentLookupFailure(t *testing.T) {
	f := newFixture()
	payments := &flakyPayments{Payments: f.payments, failExists: true}
	rec := NewCreditReconciler(f.accounts, payments, f.guard, nil, quiet, ReconcilerOptions{WelcomeBonus: 100})

	_, err := rec.Apply(context.Background(), grant("u1", "sess_1", 5, 10))
	require.Error(t, err)
	assert.Equal(t, 0, f.accounts.Len())
}

type flakyPayments struct {
	*memory.Payments
	failAppends int32
	failExists  bool
	appendCalls int32
}

func (p *flakyPayments) ExistsBySessionID(ctx context.Context, sid string) (bool, error) {
	if p.failExists {
		return false, errors.New("log unavailable")
	}
	return p.Payments.ExistsBySessionID(ctx, sid)
}

func (p *flakyPayments) Append(ctx context.Context, rec models.PaymentRecord) (bool, error) {
	n := atomic.AddInt32(&p.appendCalls, 1)
	if n <= atomic.LoadInt32(&p.failAppends) {
		return false, errors.New("log unavailable")
	}
	return p.Payments.Append(ctx, rec)
}

func TestApply_AuditFailureDoesNotFailGrant(t *testing.T) {
	f := newFixture()
	payments := &flakyPayments{Payments: f.payments, failAppends: 2}
	wp := worker.NewPool(1, 8)
	rec := NewCreditReconciler(f.accounts, payments, f.guard, wp, quiet, ReconcilerOptions{
		WelcomeBonus:       100,
		AuditRetryAttempts: 3,
		AuditRetryBackoff:  time.Millisecond,
	})

	res, err := rec.Apply(context.Background(), grant("u1", "sess_1", 500, 2500))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, res.Audited)
	assert.Equal(t, int64(600), balance(t, f.accounts, "u1"))

	wp.Stop()
	got, err := f.payments.GetBySessionID(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Credits)
	assert.Equal(t, int32(3), atomic.LoadInt32(&payments.appendCalls))
}
