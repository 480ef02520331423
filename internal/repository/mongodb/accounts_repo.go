package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountsRepo struct{ coll *mongo.Collection }

func (r *accountsRepo) FindByIdentity(ctx context.Context, identity string) (models.Account, error) {
	var a models.Account
	err := r.coll.FindOne(ctx, bson.M{"_id": identity}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Account{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (r *accountsRepo) Create(ctx context.Context, identity string, initialCredits int64) (models.Account, error) {
	now := time.Now().UTC()
	a := models.Account{Identity: identity, Credits: initialCredits, CreatedAt: now, UpdatedAt: now}
	if _, err := r.coll.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Account{}, repository.ErrConflict
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (r *accountsRepo) IncrementCredits(ctx context.Context, identity string, delta int64) (models.Account, error) {
	var a models.Account
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": identity},
		bson.M{
			"$inc": bson.M{"credits": delta},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Account{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("increment credits: %w", err)
	}
	return a, nil
}
