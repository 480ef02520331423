package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/travel-credits/internal/api"
	"github.com/baharkarakas/travel-credits/internal/app"
	"github.com/baharkarakas/travel-credits/internal/auth"
	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/logger"
	"github.com/baharkarakas/travel-credits/internal/metrics"
	"github.com/baharkarakas/travel-credits/internal/payments"
	"github.com/baharkarakas/travel-credits/internal/services"
	"github.com/baharkarakas/travel-credits/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, log, cfg.Migrate)
	if err != nil {
		log.Error("store init", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer stores.Close()

	metrics.Init()

	wp := worker.NewPool(4, 1024)
	defer wp.Stop()

	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		Log:        log,
		Parser:     payments.NewVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance),
		Reconciler: app.NewReconciler(stores, cfg, wp, log),
		Ledger:     services.NewLedgerService(stores.Accounts, stores.Payments),
		Tokens:     auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		Store:      stores.Pinger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "redis_guard", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
