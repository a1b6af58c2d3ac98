package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/rohanbasu/trendora-backend/api/responses"
	"github.com/rohanbasu/trendora-backend/pkg/config"
	"github.com/rohanbasu/trendora-backend/pkg/db"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/redis"
)

const readinessTimeout = 5 * time.Second

// HealthLive reports process liveness only.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Trendora-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// HealthReady verifies the backing stores are reachable.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}

		if dbPinger == nil {
			checks["database"] = "not configured"
		} else if err := dbPinger.Ping(ctx); err != nil {
			logg.Error(ctx, "readiness database ping failed", err)
			checks["database"] = "unreachable"
		} else {
			checks["database"] = "ok"
		}

		if redisPinger == nil {
			checks["redis"] = "not configured"
		} else if err := redisPinger.Ping(ctx); err != nil {
			logg.Error(ctx, "readiness redis ping failed", err)
			checks["redis"] = "unreachable"
		} else {
			checks["redis"] = "ok"
		}

		w.Header().Set("X-Trendora-Env", cfg.App.Env)

		for _, state := range checks {
			if state != "ok" {
				err := pkgerrors.New(pkgerrors.CodeDependency, "service not ready").
					WithDetails(map[string]any{"checks": checks})
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
