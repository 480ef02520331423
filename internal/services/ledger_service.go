package services

import (
	"context"

	"github.com/baharkarakas/travel-credits/internal/models"
	repo "github.com/baharkarakas/travel-credits/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// LedgerService serves the read side of the admin console.
type LedgerService struct {
	accounts repo.Accounts
	payments repo.Payments
}

func NewLedgerService(a repo.Accounts, p repo.Payments) *LedgerService {
	return &LedgerService{accounts: a, payments: p}
}

func (s *LedgerService) Account(ctx context.Context, identity string) (models.Account, error) {
	return s.accounts.FindByIdentity(ctx, identity)
}

func (s *LedgerService) Payment(ctx context.Context, sessionID string) (models.PaymentRecord, error) {
	return s.payments.GetBySessionID(ctx, sessionID)
}

func (s *LedgerService) Payments(ctx context.Context, accountID string, limit, offset int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.ListByAccount(ctx, accountID, limit, offset)
}
