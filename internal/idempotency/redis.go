package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "credits:session:"
	valueLocked  = "processing"
	valueApplied = "applied"
)

// RedisGuard shares claims across every replica of the service.
type RedisGuard struct {
	rdb     *redis.Client
	lockTTL time.Duration
	doneTTL time.Duration
}

func NewRedisGuard(rdb *redis.Client, lockTTL, doneTTL time.Duration) *RedisGuard {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}
	return &RedisGuard{rdb: rdb, lockTTL: lockTTL, doneTTL: doneTTL}
}

func (g *RedisGuard) Claim(ctx context.Context, sessionID string) (ClaimState, error) {
	key := keyPrefix + sessionID
	ok, err := g.rdb.SetNX(ctx, key, valueLocked, g.lockTTL).Result()
	if err != nil {
		return InFlight, fmt.Errorf("claim session: %w", err)
	}
	if ok {
		return Acquired, nil
	}

	v, err := g.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; let the gateway retry
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read session claim: %w", err)
	case v == valueApplied:
		return Done, nil
	default:
		return InFlight, nil
	}
}

func (g *RedisGuard) Complete(ctx context.Context, sessionID string) error {
	if err := g.rdb.Set(ctx, keyPrefix+sessionID, valueApplied, g.doneTTL).Err(); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, sessionID string) error {
	if err := g.rdb.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	return nil
}
