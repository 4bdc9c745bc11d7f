package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/internal/cron"
	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
	"github.com/angelmondragon/ledgerz-backend/pkg/migrate"
	"github.com/angelmondragon/ledgerz-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	idemRepo := idempotency.NewRepository(dbClient.DB())
	coordinator, err := idempotency.NewCoordinator(idemRepo, cfg.Idempotency.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency coordinator", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewIdempotencySweepJob(cron.IdempotencySweepParams{
		Logger:      logg,
		Coordinator: coordinator,
		Metrics:     metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency sweep job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewAuditRetentionJob(cron.AuditRetentionParams{
		Logger:    logg,
		Repo:      audit.NewRepository(dbClient.DB()),
		Metrics:   metricsCollector,
		Retention: cfg.Audit.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Idempotency.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
