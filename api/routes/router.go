package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ledgerz-backend/api/controllers"
	"github.com/angelmondragon/ledgerz-backend/api/middleware"
	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/internal/ledger"
	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	accountsService accounts.Service,
	ledgerService ledger.Service,
	auditRepo audit.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	rateLimitPolicy := middleware.NewRateLimitPolicy(cfg.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(rateLimitPolicy, redisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", controllers.AccountCreate(accountsService, logg))
			r.Get("/{accountId}", controllers.AccountGet(accountsService, logg))
			r.Get("/{accountId}/balance", controllers.AccountBalance(accountsService, logg))
			r.Get("/{accountId}/transactions", controllers.AccountTransactionList(ledgerService, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.TransactionCreate(ledgerService, logg))
			r.Get("/{transactionId}", controllers.TransactionGet(ledgerService, logg))
			r.Put("/{transactionId}", controllers.TransactionUpdate(ledgerService, logg))
			r.Delete("/{transactionId}", controllers.TransactionDelete(ledgerService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequirePrivileged(logg))
		r.Use(middleware.RateLimit(rateLimitPolicy, redisClient, logg))

		r.Get("/ping", controllers.AdminPing())
		r.Get("/transactions", controllers.AdminTransactionList(ledgerService, logg))
		r.Get("/audit/{entityId}", controllers.AdminAuditTrail(auditRepo, logg))
	})

	return r
}
