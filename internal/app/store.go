// Package app assembles the stores and the reconciler from configuration
// for the server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/db"
	"github.com/baharkarakas/travel-credits/internal/idempotency"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/repository/memory"
	"github.com/baharkarakas/travel-credits/internal/repository/mongodb"
	"github.com/baharkarakas/travel-credits/internal/repository/postgres"
	"github.com/baharkarakas/travel-credits/internal/services"
	"github.com/baharkarakas/travel-credits/internal/worker"
)

type Stores struct {
	Accounts repository.Accounts
	Payments repository.Payments
	Pinger   repository.Pinger
	Guard    idempotency.Guard

	closers []func()
}

// Close releases every connection opened by OpenStores, newest first.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores connects the configured store driver and session guard.
// migrate applies pending Postgres migrations before returning.
func OpenStores(ctx context.Context, cfg config.Config, log *slog.Logger, migrate bool) (*Stores, error) {
	s := &Stores{}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if migrate {
			if err := db.RunMigrations(pool); err != nil {
				s.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			log.Info("migrations applied")
		}
		repos := postgres.NewRepositories(pool)
		s.Accounts, s.Payments, s.Pinger = repos.Accounts, repos.Payments, repos.Pinger

	case config.DriverMongo:
		client, database, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := db.EnsureMongoIndexes(ctx, database); err != nil {
			s.Close()
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		repos := mongodb.NewRepositories(database)
		s.Accounts, s.Payments, s.Pinger = repos.Accounts, repos.Payments, repos.Pinger

	case config.DriverMemory:
		log.Warn("using in-memory store, balances are lost on restart")
		s.Accounts, s.Payments, s.Pinger = memory.NewAccounts(), memory.NewPayments(), memory.Pinger()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		rdb, err := db.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		s.Guard = idempotency.NewRedisGuard(rdb, idempotency.DefaultLockTTL, cfg.IdempotencyTTL)
	} else {
		s.Guard = idempotency.NewMemoryGuard(idempotency.DefaultLockTTL, cfg.IdempotencyTTL)
	}

	return s, nil
}

// NewReconciler builds the credit reconciler over s.
func NewReconciler(s *Stores, cfg config.Config, wp *worker.Pool, log *slog.Logger) *services.CreditReconciler {
	return services.NewCreditReconciler(s.Accounts, s.Payments, s.Guard, wp, log, services.ReconcilerOptions{
		WelcomeBonus:       cfg.WelcomeBonus,
		AuditRetryAttempts: cfg.AuditRetryAttempts,
	})
}
