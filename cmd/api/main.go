package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/ledgerz-backend/api/routes"
	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/internal/events/kafka"
	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/internal/ledger"
	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/env"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
	"github.com/angelmondragon/ledgerz-backend/pkg/migrate"
	"github.com/angelmondragon/ledgerz-backend/pkg/redis"
)

const shutdownGrace = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	txMetrics := metrics.NewTransactionMetrics(registry)

	accountsRepo := accounts.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	idemRepo := idempotency.NewRepository(dbClient.DB())
	auditRepo := audit.NewRepository(dbClient.DB())

	coordinator, err := idempotency.NewCoordinator(idemRepo, cfg.Idempotency.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency coordinator", err)
		os.Exit(1)
	}

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled() {
		publisher, err = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logg.Error(context.Background(), "failed to create kafka publisher", err)
			os.Exit(1)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logg.Error(context.Background(), "error closing kafka publisher", err)
			}
		}()
	}

	var auditService audit.Service
	if cfg.Audit.Enabled {
		if publisher != nil {
			auditService, err = audit.NewService(auditRepo, publisher, cfg.Audit, logg)
		} else {
			auditService, err = audit.NewService(auditRepo, nil, cfg.Audit, logg)
		}
		if err != nil {
			logg.Error(context.Background(), "failed to create audit service", err)
			os.Exit(1)
		}
	}

	accountsService, err := accounts.NewService(accountsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledgerRepo, accountsRepo, dbClient, coordinator, auditService, txMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			accountsService,
			ledgerService,
			auditRepo,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	if auditService != nil {
		if err := auditService.Close(shutdownCtx); err != nil {
			logg.Error(ctx, "audit service drain failed", err)
		}
	}
	logg.Info(ctx, "api server shut down gracefully")
}
