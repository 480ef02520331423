package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type paymentsRepo struct{ coll *mongo.Collection }

func (r *paymentsRepo) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"session_id": sessionID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("payment exists: %w", err)
	}
	return n > 0, nil
}

func (r *paymentsRepo) Append(ctx context.Context, rec models.PaymentRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("append payment: %w", err)
	}
	return true, nil
}

func (r *paymentsRepo) GetBySessionID(ctx context.Context, sessionID string) (models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := r.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PaymentRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return models.PaymentRecord{}, fmt.Errorf("get payment: %w", err)
	}
	return rec, nil
}

func (r *paymentsRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.PaymentRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := r.coll.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.PaymentRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return out, nil
}
