package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/api/rest"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/cache"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/config"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/database"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/repository"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/telemetry"
	adminsvc "github.com/meridianrisk/raf-engine/internal/service/admin"
	appetitesvc "github.com/meridianrisk/raf-engine/internal/service/appetite"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	var badges *cache.StatusCache
	if cfg.Redis.Enabled {
		badges, err = cache.NewStatusCache(&cfg.Redis, logger)
		if err != nil {
			logger.Fatal("status cache connection failed", zap.Error(err))
		}
		defer badges.Close()
	}

	db := pool.Pool()
	tolerances := repository.NewToleranceRepository(db)
	kris := repository.NewKRIRepository(db)
	dimes := repository.NewDIMERepository(db)

	service := appetitesvc.NewService(
		tolerances,
		kris,
		repository.NewSyncRepository(db),
		repository.NewSnapshotRepository(db),
		repository.NewBreachRepository(db),
		repository.NewRecalcRunRepository(db, logger, metrics),
		dimes,
		badgeCache(badges),
		metrics,
		logger,
		appetitesvc.Config{
			BreachWindow:     cfg.Appetite.BreachWindow,
			LockStaleness:    cfg.Appetite.LockStaleness,
			SweepParallelism: cfg.Appetite.SweepParallelism,
			HistoryDepth:     cfg.Appetite.SnapshotHistoryDepth,
		},
	)

	adminService := adminsvc.NewService(kris, tolerances, dimes, badgeInvalidator(badges), logger)

	handler := rest.NewHandler(service, adminService, badgeReader(badges), logger)
	server := rest.NewServer(&cfg.Server, handler, registry, logger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// badgeCache narrows the optional cache to the service interface. A typed
// nil *StatusCache must become a true nil interface.
func badgeCache(c *cache.StatusCache) appetitesvc.StatusBadgeCache {
	if c == nil {
		return nil
	}
	return c
}

func badgeReader(c *cache.StatusCache) rest.BadgeReader {
	if c == nil {
		return nil
	}
	return c
}

func badgeInvalidator(c *cache.StatusCache) adminsvc.BadgeInvalidator {
	if c == nil {
		return nil
	}
	return c
}
