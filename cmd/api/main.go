package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/evolv-devices/storefront-backend/api/routes"
	"github.com/evolv-devices/storefront-backend/internal/broadcast"
	checkoutsvc "github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/internal/notify"
	"github.com/evolv-devices/storefront-backend/internal/reconcile"
	"github.com/evolv-devices/storefront-backend/internal/records"
	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/mailer"
	"github.com/evolv-devices/storefront-backend/pkg/metrics"
	"github.com/evolv-devices/storefront-backend/pkg/redis"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

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

	gateway, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize stripe client", err)
		os.Exit(1)
	}

	mailClient, err := mailer.New(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize mailer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	repo := records.NewRepository(dbClient.DB())
	notifier := notify.NewService(mailClient, cfg.Sendgrid, paymentMetrics, logg)
	checkoutService := checkoutsvc.NewService(repo, gateway, cfg.Checkout, logg)
	reconcileService := reconcile.NewService(repo, gateway, notifier, cfg.Checkout, paymentMetrics, logg)
	broadcastService := broadcast.NewService(mailClient, cfg.Broadcast.Workers, paymentMetrics, logg)

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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			reconcileService,
			broadcastService,
			registry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
