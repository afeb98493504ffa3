// Package http assembles the service's chi router: middleware chain, feature
// handlers, health, and metrics.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcana/internal/identity"
	ledgerhandler "arcana/internal/ledger/handler"
	"arcana/internal/platform/metrics"
	"arcana/internal/platform/middleware"
	"arcana/internal/platform/redis"
	rewardhandler "arcana/internal/reward/handler"
	"arcana/pkg/platform/httputil"
)

// Deps bundles everything the router mounts. DB and Redis are optional and
// only affect the health report.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TokenValidator middleware.TokenValidator
	Identity       *identity.Service
	Ledger         *ledgerhandler.Handler
	Rewards        *rewardhandler.Handler
	DB             *sql.DB
	Redis          *redis.Client
}

// New builds the service router. Every balance and award route runs behind
// the metadata, metrics, optional-auth, and identity-resolver chain; health
// and metrics stay outside it so probes never mint device cookies.
func New(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metadata)
	r.Use(deps.Metrics.Instrument)

	r.Get("/healthz", healthHandler(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(deps.TokenValidator, deps.Logger))
		r.Use(identity.Resolver(deps.Identity, deps.Logger))
		deps.Ledger.Register(r)
		deps.Rewards.Register(r)
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{"status": "ok"}

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report["status"] = "degraded"
				report["postgres"] = "unreachable"
			} else {
				report["postgres"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report["status"] = "degraded"
				report["redis"] = "unreachable"
			} else {
				report["redis"] = "ok"
			}
		}

		httputil.WriteJSON(w, status, report)
	}
}
