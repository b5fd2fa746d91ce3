package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/makersrow/storefront-backend/api/routes"
	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/cartstore"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/db"
	"github.com/makersrow/storefront-backend/pkg/logger"
	"github.com/makersrow/storefront-backend/pkg/metrics"
	"github.com/makersrow/storefront-backend/pkg/migrate"
	"github.com/makersrow/storefront-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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

	pricer, err := pricing.NewEngineFromConfig(cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to build pricing engine", err)
		os.Exit(1)
	}

	listings := catalog.NewRepository(dbClient.DB())
	store, err := cartstore.NewStore(dbClient.DB(), listings)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart store", err)
		os.Exit(1)
	}

	registry, err := cartsvc.NewRegistry(cartsvc.RegistryDeps{
		Remote:  store,
		Codes:   promo.NewRepository(dbClient.DB()),
		Pricer:  pricer,
		Log:     logg,
		Metrics: metrics.NewCartMetrics(prometheus.DefaultRegisterer),
		Cart:    cfg.Cart,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build cart registry", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Log:      logg,
			DB:       dbClient,
			Redis:    redisClient,
			Registry: registry,
			Store:    store,
			Catalog:  listings,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stopCh, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCh.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "server shutdown failed", err)
	}

	// flush any in-flight cart dispatches before the process exits
	registry.Shutdown(shutdownCtx)
	logg.Info(ctx, "api server stopped")
}
