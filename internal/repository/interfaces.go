package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/travel-credits/internal/models"
)

var (
	// ErrNotFound is returned when the requested account or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by Accounts.Create when the identity is already taken.
	ErrConflict = errors.New("account already exists")
)

// Accounts is the account store. IncrementCredits must be a store-native
// atomic add; callers never read-modify-write the balance.
type Accounts interface {
	FindByIdentity(ctx context.Context, identity string) (models.Account, error)
	Create(ctx context.Context, identity string, initialCredits int64) (models.Account, error)
	IncrementCredits(ctx context.Context, identity string, delta int64) (models.Account, error)
}

// Payments is the append-mostly transaction log.
type Payments interface {
	ExistsBySessionID(ctx context.Context, sessionID string) (bool, error)
	// Append inserts rec unless a record with the same session id exists.
	// inserted reports whether a new row was written.
	Append(ctx context.Context, rec models.PaymentRecord) (inserted bool, err error)
	GetBySessionID(ctx context.Context, sessionID string) (models.PaymentRecord, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.PaymentRecord, error)
}

// Pinger reports store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
