package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/baharkarakas/travel-credits/internal/idempotency"
	"github.com/baharkarakas/travel-credits/internal/metrics"
	"github.com/baharkarakas/travel-credits/internal/models"
	repo "github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/validate"
	"github.com/baharkarakas/travel-credits/internal/worker"
	"github.com/google/uuid"
)

const (
	DefaultWelcomeBonus = 100
	MaxWelcomeBonus     = 1_000_000
	maxGrantAttempts    = 3
)

var (
	// ErrMalformedEvent marks a grant that can never succeed; the gateway
	// must not retry it.
	ErrMalformedEvent = errors.New("malformed payment event")
	// ErrInFlight means another delivery of the same session holds the claim.
	ErrInFlight = errors.New("payment session is being processed")
	// ErrContention means the account kept appearing and disappearing
	// between lookups for every attempt.
	ErrContention = errors.New("account changed concurrently")
)

// CreditGrant is one verified credit purchase.
type CreditGrant struct {
	EventID     string `json:"event_id"`
	SessionID   string `json:"session_id" validate:"required"`
	AccountID   string `json:"account_id" validate:"required"`
	PackageID   string `json:"package_id"`
	Credits     int64  `json:"credits" validate:"gt=0,lte=1000000000"`
	AmountTotal int64  `json:"amount_total" validate:"gte=0"`
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

type GrantResult struct {
	Outcome Outcome
	Account models.Account
	Created bool
	Audited bool
}

type ReconcilerOptions struct {
	WelcomeBonus       int64
	AuditRetryAttempts int
	AuditRetryBackoff  time.Duration
}

// CreditReconciler applies credit grants at most once per gateway session.
// It keeps no state between calls; concurrency control lives in the
// account store and the idempotency guard.
type CreditReconciler struct {
	accounts repo.Accounts
	payments repo.Payments
	guard    idempotency.Guard
	wp       *worker.Pool
	log      *slog.Logger

	welcomeBonus  int64
	retryAttempts int
	retryBackoff  time.Duration
}

func NewCreditReconciler(a repo.Accounts, p repo.Payments, g idempotency.Guard, wp *worker.Pool, log *slog.Logger, opts ReconcilerOptions) *CreditReconciler {
	if log == nil {
		log = slog.Default()
	}
	if opts.WelcomeBonus < 0 {
		opts.WelcomeBonus = 0
	}
	if opts.WelcomeBonus > MaxWelcomeBonus {
		opts.WelcomeBonus = MaxWelcomeBonus
	}
	if opts.AuditRetryBackoff <= 0 {
		opts.AuditRetryBackoff = time.Second
	}
	return &CreditReconciler{
		accounts:      a,
		payments:      p,
		guard:         g,
		wp:            wp,
		log:           log,
		welcomeBonus:  opts.WelcomeBonus,
		retryAttempts: opts.AuditRetryAttempts,
		retryBackoff:  opts.AuditRetryBackoff,
	}
}

// Apply grants g.Credits to g.AccountID unless g.SessionID was already
// processed. Errors other than ErrMalformedEvent are retryable.
func (r *CreditReconciler) Apply(ctx context.Context, g CreditGrant) (GrantResult, error) {
	log := r.log.With("event_id", g.EventID, "session_id", g.SessionID, "account_id", g.AccountID)

	if err := validate.Struct(g); err != nil {
		log.Warn("credit grant rejected", "err", err)
		return GrantResult{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	seen, err := r.payments.ExistsBySessionID(ctx, g.SessionID)
	if err != nil {
		log.Error("payment lookup failed", "err", err)
		return GrantResult{}, fmt.Errorf("check session: %w", err)
	}
	if seen {
		log.Info("session already recorded, skipping grant")
		return GrantResult{Outcome: OutcomeDuplicate}, nil
	}

	state, err := r.guard.Claim(ctx, g.SessionID)
	if err != nil {
		log.Error("session claim failed", "err", err)
		return GrantResult{}, err
	}
	switch state {
	case idempotency.Done:
		log.Info("session already applied, skipping grant")
		return GrantResult{Outcome: OutcomeDuplicate}, nil
	case idempotency.InFlight:
		log.Warn("session held by another delivery")
		return GrantResult{}, ErrInFlight
	}

	acc, created, err := r.grant(ctx, g.AccountID, g.Credits)
	if err != nil {
		log.Error("credit grant failed", "err", err)
		if rerr := r.guard.Release(context.WithoutCancel(ctx), g.SessionID); rerr != nil {
			log.Error("session release failed", "err", rerr)
		}
		return GrantResult{}, fmt.Errorf("grant credits: %w", err)
	}

	granted := g.Credits
	if created {
		granted += r.welcomeBonus
		metrics.AccountsCreatedTotal.Inc()
	}
	metrics.CreditsGrantedTotal.Add(float64(granted))
	log.Info("credits granted", "credits", g.Credits, "new_account", created, "balance", acc.Credits)

	// Credits are granted from here on. Nothing below may fail the delivery.
	detached := context.WithoutCancel(ctx)
	if err := r.guard.Complete(detached, g.SessionID); err != nil {
		log.Error("session complete failed", "err", err)
	}

	rec := models.PaymentRecord{
		ID:          uuid.NewString(),
		AccountID:   g.AccountID,
		SessionID:   g.SessionID,
		EventID:     g.EventID,
		PackageID:   g.PackageID,
		AmountTotal: g.AmountTotal,
		Credits:     g.Credits,
		Status:      models.PaymentCompleted,
	}
	audited := true
	if _, err := r.payments.Append(detached, rec); err != nil {
		audited = false
		metrics.AuditLogFailures.Inc()
		log.Error("payment record append failed", "err", err, "amount_total", g.AmountTotal, "credits", g.Credits)
		r.scheduleAuditRetry(rec)
	}

	return GrantResult{Outcome: OutcomeApplied, Account: acc, Created: created, Audited: audited}, nil
}

// grant creates the account with the welcome bonus or atomically adds
// credits to an existing one. A lost creation race falls back to the
// increment path.
func (r *CreditReconciler) grant(ctx context.Context, identity string, credits int64) (models.Account, bool, error) {
	for attempt := 0; attempt < maxGrantAttempts; attempt++ {
		_, err := r.accounts.FindByIdentity(ctx, identity)
		switch {
		case err == nil:
			acc, err := r.accounts.IncrementCredits(ctx, identity, credits)
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return acc, false, err
		case errors.Is(err, repo.ErrNotFound):
			acc, err := r.accounts.Create(ctx, identity, r.welcomeBonus+credits)
			if errors.Is(err, repo.ErrConflict) {
				metrics.AccountCreateConflicts.Inc()
				r.log.Info("account created concurrently, retrying as increment", "account_id", identity)
				continue
			}
			return acc, err == nil, err
		default:
			return models.Account{}, false, err
		}
	}
	return models.Account{}, false, ErrContention
}

func (r *CreditReconciler) scheduleAuditRetry(rec models.PaymentRecord) {
	if r.wp == nil || r.retryAttempts <= 0 {
		return
	}
	if !r.wp.TrySubmit(func() { r.retryAudit(rec) }) {
		r.log.Error("audit retry queue full, payment record needs manual reconciliation",
			"session_id", rec.SessionID, "account_id", rec.AccountID)
	}
}

func (r *CreditReconciler) retryAudit(rec models.PaymentRecord) {
	log := r.log.With("session_id", rec.SessionID, "account_id", rec.AccountID)
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * r.retryBackoff)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := r.payments.Append(ctx, rec)
		cancel()
		if err == nil {
			log.Info("payment record appended on retry", "attempt", attempt)
			return
		}
		log.Warn("payment record retry failed", "attempt", attempt, "err", err)
	}
	log.Error("payment record retries exhausted, needs manual reconciliation",
		"amount_total", rec.AmountTotal, "credits", rec.Credits)
}
