// Package memory is an in-process implementation of the repository
// contracts, used for STORE_DRIVER=memory and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/google/uuid"
)

type Accounts struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[string]models.Account)}
}

func (s *Accounts) FindByIdentity(_ context.Context, identity string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[identity]
	if !ok {
		return models.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (s *Accounts) Create(_ context.Context, identity string, initialCredits int64) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[identity]; ok {
		return models.Account{}, repository.ErrConflict
	}
	now := time.Now().UTC()
	a := models.Account{Identity: identity, Credits: initialCredits, CreatedAt: now, UpdatedAt: now}
	s.accounts[identity] = a
	return a, nil
}

func (s *Accounts) IncrementCredits(_ context.Context, identity string, delta int64) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[identity]
	if !ok {
		return models.Account{}, repository.ErrNotFound
	}
	a.Credits += delta
	a.UpdatedAt = time.Now().UTC()
	s.accounts[identity] = a
	return a, nil
}

// Len returns the number of stored accounts.
func (s *Accounts) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type Payments struct {
	mu        sync.RWMutex
	bySession map[string]models.PaymentRecord
}

func NewPayments() *Payments {
	return &Payments{bySession: make(map[string]models.PaymentRecord)}
}

func (s *Payments) ExistsBySessionID(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bySession[sessionID]
	return ok, nil
}

func (s *Payments) Append(_ context.Context, rec models.PaymentRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySession[rec.SessionID]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.bySession[rec.SessionID] = rec
	return true, nil
}

func (s *Payments) GetBySessionID(_ context.Context, sessionID string) (models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bySession[sessionID]
	if !ok {
		return models.PaymentRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (s *Payments) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.PaymentRecord, error) {
	s.mu.RLock()
	out := []models.PaymentRecord{}
	for _, rec := range s.bySession {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []models.PaymentRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Payments) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession)
}

type pinger struct{}

func (pinger) Ping(context.Context) error { return nil }

// Pinger returns a repository.Pinger for the in-process store.
func Pinger() repository.Pinger { return pinger{} }
