package api

import (
	"net/http"

	"github.com/ayo6706/backoffice-ledger/internal/api/handler"
	"github.com/ayo6706/backoffice-ledger/internal/api/middleware"
	"github.com/ayo6706/backoffice-ledger/internal/api/spec"
	"github.com/ayo6706/backoffice-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Ledger         *service.LedgerService
	Accounts       *service.AccountService
	FeeRates       *service.FeeRateService
	Reconciliation *service.ReconciliationService
}

// Options tunes the router. Zero rate limits disable limiting.
type Options struct {
	PublicRateLimitRPS int
	AuthRateLimitRPS   int
}

type Router struct {
	logger      *zap.Logger
	services    Services
	idempotency middleware.IdempotencyStore
	db          handler.Pinger
	redis       redis.Cmdable
	opts        Options
}

func NewRouter(logger *zap.Logger, services Services, idem middleware.IdempotencyStore, db handler.Pinger, redis redis.Cmdable, opts Options) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger:      logger,
		services:    services,
		idempotency: idem,
		db:          db,
		redis:       redis,
		opts:        opts,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	ledgerHandler := handler.NewLedgerHandler(api.services.Ledger)
	accountHandler := handler.NewAccountHandler(api.services.Accounts)
	feeRateHandler := handler.NewFeeRateHandler(api.services.FeeRates)
	reconciliationHandler := handler.NewReconciliationHandler(api.services.Reconciliation)

	idempotent := middleware.IdempotencyMiddleware(api.idempotency, api.logger)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	// Public Routes
	r.Group(func(r chi.Router) {
		if api.opts.PublicRateLimitRPS > 0 {
			r.Use(middleware.PublicRateLimiter(api.opts.PublicRateLimitRPS))
		}
		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs", http.RedirectHandler("/docs/index.html", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		if api.opts.AuthRateLimitRPS > 0 {
			r.Use(middleware.AuthRateLimiter(api.opts.AuthRateLimitRPS))
		}

		// Accounts
		r.Get("/v1/accounts/me", accountHandler.GetBalance)
		r.Get("/v1/accounts/me/statement", accountHandler.GetStatement)
		r.Get("/v1/accounts/me/transactions", accountHandler.ListTransactions)

		// Withdraws
		r.With(idempotent).Post("/v1/withdraws", ledgerHandler.CreateWithdraw)
		r.Get("/v1/transactions/{id}", ledgerHandler.GetTransaction)

		// Back office
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/v1/accounts", accountHandler.CreateAccount)
			r.With(idempotent).Post("/v1/deposits", ledgerHandler.CreateDeposit)
			r.Put("/v1/transactions/{id}/status", ledgerHandler.ChangeStatus)
			r.Put("/v1/withdraws/{id}/status", ledgerHandler.ChangeWithdrawStatus)
			r.Put("/v1/deposits/{id}/status", ledgerHandler.ChangeDepositStatus)
			r.Get("/v1/fee-rates/{fee_type}", feeRateHandler.Get)
			r.Put("/v1/fee-rates/{fee_type}", feeRateHandler.Put)
			r.Post("/v1/admin/reconciliation", reconciliationHandler.Run)
		})
	})

	return r
}
