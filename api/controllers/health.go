package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/ledgerz-backend/api/responses"
	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

const envHeader = "X-Ledgerz-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the datasource and cache before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		checks["db"] = checkDependency(ctx, dbP)
		checks["redis"] = checkDependency(ctx, redisP)
		for name, status := range checks {
			if status != "ok" && status != "skipped" {
				healthy = false
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{"dependency": name, "status": status})
					logg.Warn(logCtx, "health.dependency_unavailable")
				}
			}
		}

		status := http.StatusOK
		state := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}

func checkDependency(ctx context.Context, p pinger) string {
	if p == nil {
		return "skipped"
	}
	if err := p.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
