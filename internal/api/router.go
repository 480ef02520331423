package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/travel-credits/internal/api/handlers"
	"github.com/baharkarakas/travel-credits/internal/auth"
	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/metrics"
	"github.com/baharkarakas/travel-credits/internal/middleware"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/services"
)

type RouterDeps struct {
	Cfg        config.Config
	Log        *slog.Logger
	Parser     handlers.EventParser
	Reconciler handlers.CreditApplier
	Ledger     *services.LedgerService
	Tokens     *auth.TokenManager
	Store      repository.Pinger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)

	// health & metrics
	r.Get("/health", handlers.NewHealthHandler(d.Store).ServeHTTP)
	r.Handle("/metrics", metrics.Handler())

	// gateway-facing; the signature is the authentication
	r.Post("/webhooks/stripe", handlers.NewWebhookHandler(d.Parser, d.Reconciler, d.Log).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Cfg.RateRPS, d.Cfg.RateBurst))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		}))

		ah := handlers.NewAuthHandler(d.Tokens, d.Cfg.AdminPasswordHash)
		r.Post("/auth/login", ah.Login)
		r.Post("/auth/refresh", ah.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(d.Tokens, auth.RoleAdmin))

			lh := handlers.NewLedgerHandler(d.Ledger)
			r.Get("/accounts/{id}", lh.GetAccount)
			r.Get("/payments", lh.ListPayments)
			r.Get("/payments/{session_id}", lh.GetPayment)
		})
	})

	return r
}
