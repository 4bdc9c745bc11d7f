package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/ledgerz-backend/api/responses"
	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy defines fixed-window limits applied per client IP and per
// authenticated actor.
type RateLimitPolicy struct {
	window     time.Duration
	ipLimit    int
	actorLimit int
}

// NewRateLimitPolicy builds a policy from the configured limits.
func NewRateLimitPolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		window:     cfg.Window,
		ipLimit:    cfg.IPLimit,
		actorLimit: cfg.ActorLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.actorLimit > 0)
}

// RateLimit enforces per-IP and per-actor fixed-window counters.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.ipLimit > 0 {
				if ip := clientIP(r); ip != "" {
					scope := fmt.Sprintf("ip:%s", ip)
					if allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.ipLimit), policy.window); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, "ip", count, policy.ipLimit, policy.window)
						return
					}
				}
			}

			if policy.actorLimit > 0 {
				if actor := UserIDFromContext(ctx); actor != "" {
					scope := fmt.Sprintf("actor:%s", actor)
					if allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.actorLimit), policy.window); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, "actor", count, policy.actorLimit, policy.window)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, scope string, count int64, limit int, window time.Duration) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(window.Seconds()),
		})
		logg.Warn(logCtx, "rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}
