package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hullhost/hullhost/internal/app/migrate"
	"github.com/hullhost/hullhost/internal/fleet/aggregator"
	"github.com/hullhost/hullhost/internal/fleet/billing"
	"github.com/hullhost/hullhost/internal/fleet/health"
	"github.com/hullhost/hullhost/internal/fleet/metering"
	"github.com/hullhost/hullhost/internal/fleet/registry"
	"github.com/hullhost/hullhost/internal/fleet/scaling"
	"github.com/hullhost/hullhost/internal/fleet/traffic"
	httpx "github.com/hullhost/hullhost/internal/http"
	"github.com/hullhost/hullhost/internal/repository/postgres"
	"github.com/hullhost/hullhost/internal/service/auth"
	"github.com/hullhost/hullhost/internal/service/image"
	"github.com/hullhost/hullhost/internal/ws"
	"github.com/hullhost/hullhost/pkg/config"
	"github.com/hullhost/hullhost/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	fleetHub := ws.NewHub(ws.WithEventBuffer(cfg.WSBuffer))

	authSvc := auth.New(repo, log, cfg)
	imageSvc := image.New(repo, repo, log, cfg)

	reg := registry.New(log)
	monitor := health.NewMonitor()
	reg.Subscribe(monitor)
	scaler := scaling.New(reg, log)
	trafficSvc := traffic.NewProvider(traffic.WithRateWindow(cfg.TrafficRateWindow))
	billingSvc := billing.NewEngine(billing.DefaultPricing, billing.DefaultGrowth, log)
	fleetAgg := aggregator.New(reg, monitor, trafficSvc, billingSvc, log, cfg.FleetCallTimeout, cfg.FleetWorkers)

	meter := metering.New(repo, reg, monitor, trafficSvc, billingSvc, log, cfg.MeteringInterval)
	go meter.Run(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, httpx.Deps{
		Auth:         authSvc,
		Images:       imageSvc,
		Registry:     reg,
		Scaling:      scaler,
		Traffic:      trafficSvc,
		Billing:      billingSvc,
		Fleet:        fleetAgg,
		Hub:          fleetHub,
		Limiter:      limiter,
		ServiceToken: cfg.ServiceToken,
		DBHealth:     pool.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
