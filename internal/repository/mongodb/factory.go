// Package mongodb stores accounts and payment records as documents. Account
// documents use the identity as _id so the primary index enforces
// uniqueness; payments rely on the unique session_id index created by
// db.EnsureMongoIndexes.
package mongodb

import (
	"context"

	repo "github.com/baharkarakas/travel-credits/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
)

type Repositories struct {
	Accounts repo.Accounts
	Payments repo.Payments
	Pinger   repo.Pinger
}

func NewRepositories(d *mongo.Database) Repositories {
	return Repositories{
		Accounts: &accountsRepo{coll: d.Collection("accounts")},
		Payments: &paymentsRepo{coll: d.Collection("payments")},
		Pinger:   pinger{d.Client()},
	}
}

type pinger struct{ c *mongo.Client }

func (p pinger) Ping(ctx context.Context) error { return p.c.Ping(ctx, nil) }
