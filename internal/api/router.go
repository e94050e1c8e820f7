package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/platefare/restaurant-payouts/internal/api/handler"
	"github.com/platefare/restaurant-payouts/internal/api/middleware"
	"github.com/platefare/restaurant-payouts/internal/config"
	"github.com/platefare/restaurant-payouts/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Router wires handlers, middleware and shared infrastructure into the
// HTTP surface.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool // nil in memory mode
	redis     redis.Cmdable // nil when no REDIS_URL
	payoutSvc *service.PayoutService
	bankSvc   *service.BankService
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, rdb redis.Cmdable, payoutSvc *service.PayoutService, bankSvc *service.BankService) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, redis: rdb, payoutSvc: payoutSvc, bankSvc: bankSvc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	settlementHandler := handler.NewSettlementHandler(api.payoutSvc)
	payoutHandler := handler.NewPayoutHandler(api.payoutSvc)
	bankHandler := handler.NewBankHandler(api.bankSvc)
	sweepHandler := handler.NewSweepHandler(api.payoutSvc)

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Settlement intake (payments pipeline, service tokens)
		r.With(middleware.RequireRole("service")).Post("/v1/settlements", settlementHandler.CreateSettlement)

		// Restaurant dashboard
		r.Route("/v1/restaurants/{id}", func(r chi.Router) {
			r.Get("/payouts", payoutHandler.ListPayouts)
			r.Get("/earnings/pending", payoutHandler.PendingEarnings)
			r.Get("/payouts/estimate", payoutHandler.EstimatePayoutDate)
			r.Post("/payouts/manual", payoutHandler.CreateManualPayout)
			r.Put("/bank-info", bankHandler.SaveBankInfo)
			r.Get("/bank-info", bankHandler.GetBankInfo)
			r.Put("/payout-schedule", payoutHandler.ConfigureSchedule)
		})

		// Payout records
		r.Get("/v1/payouts/{id}", payoutHandler.GetPayout)
		r.With(middleware.RequireRole("operator")).Post("/v1/payouts/{id}/retry", payoutHandler.RetryPayout)

		// Operations
		r.With(middleware.RequireRole("operator")).Post("/v1/sweeps", sweepHandler.TriggerSweep)
		r.With(middleware.RequireRole("operator")).Get("/v1/payout-schedules", payoutHandler.ListSchedules)
	})

	return r
}
