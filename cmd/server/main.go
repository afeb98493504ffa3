// Command server runs the stars ledger and reward service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	arcanahttp "arcana/internal/http"
	"arcana/internal/identity"
	"arcana/internal/jwttoken"
	ledgerhandler "arcana/internal/ledger/handler"
	ledgerports "arcana/internal/ledger/ports"
	ledgerservice "arcana/internal/ledger/service"
	ledgerstore "arcana/internal/ledger/store"
	"arcana/internal/platform/config"
	"arcana/internal/platform/httpserver"
	"arcana/internal/platform/logger"
	"arcana/internal/platform/metrics"
	"arcana/internal/platform/redis"
	"arcana/internal/policy"
	rewardhandler "arcana/internal/reward/handler"
	rewardmetrics "arcana/internal/reward/metrics"
	rewardports "arcana/internal/reward/ports"
	rewardservice "arcana/internal/reward/service"
	rewardstore "arcana/internal/reward/store"
	"arcana/pkg/platform/audit"
)

const (
	jwtIssuer   = "arcana"
	jwtAudience = "arcana-api"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var publisher audit.Publisher
	if len(cfg.Audit.Brokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(ctx, cfg.Audit.Brokers, cfg.Audit.Topic, audit.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafka.Close(flushCtx); err != nil {
				log.Error("failed to flush audit events", "error", err)
			}
		}()
		publisher = kafka
	}

	var (
		ledger    ledgerports.Store
		referrals rewardports.ReferralStore
		visits    rewardports.ShareVisitStore
		adWatches rewardports.AdWatchStore
		content   rewardports.ContentLookup
	)
	if db != nil {
		ledger = ledgerstore.NewPostgres(db)
		referrals = rewardstore.NewPostgresReferrals(db)
		visits = rewardstore.NewPostgresShareVisits(db)
		adWatches = rewardstore.NewPostgresAdWatches(db)
		content = rewardstore.NewPostgresContent(db)
	} else {
		ledger = ledgerstore.NewMemory()
		referrals = rewardstore.NewMemoryReferrals()
		visits = rewardstore.NewMemoryShareVisits()
		adWatches = rewardstore.NewMemoryAdWatches()
		content = rewardstore.NewMemoryContent()
	}

	var ipLimit rewardports.IPLimiter
	if rdb != nil {
		ipLimit = rewardstore.NewRedisIPLimiter(rdb.Client)
	}

	checker := policy.NewChecker(ledger, policy.DefaultConfig())

	identitySvc, err := identity.NewService(cfg.DeviceCookieSecret)
	if err != nil {
		return err
	}
	jwtSvc := jwttoken.New(cfg.JWTSigningKey, jwtIssuer, jwtAudience)

	ledgerSvc := ledgerservice.NewService(ledger, checker, ledgerservice.WithLogger(log))
	rewardSvc := rewardservice.NewService(rewardservice.Deps{
		Ledger:    ledger,
		Checker:   checker,
		Referrals: referrals,
		Visits:    visits,
		AdWatches: adWatches,
		Content:   content,
		IPLimit:   ipLimit,
		Publisher: publisher,
		Metrics:   rewardmetrics.New(prometheus.DefaultRegisterer),
	}, rewardservice.WithLogger(log))

	router := arcanahttp.New(arcanahttp.Deps{
		Logger:         log,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		TokenValidator: jwtSvc,
		Identity:       identitySvc,
		Ledger:         ledgerhandler.New(ledgerSvc, log, cfg.AdminTokenHash),
		Rewards:        rewardhandler.New(rewardSvc, log),
		DB:             db,
		Redis:          rdb,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
