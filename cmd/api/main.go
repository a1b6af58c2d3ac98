package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rohanbasu/trendora-backend/api/routes"
	"github.com/rohanbasu/trendora-backend/internal/assignments"
	"github.com/rohanbasu/trendora-backend/internal/delivery"
	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/internal/stats"
	"github.com/rohanbasu/trendora-backend/pkg/config"
	"github.com/rohanbasu/trendora-backend/pkg/db"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/metrics"
	"github.com/rohanbasu/trendora-backend/pkg/migrate"
	"github.com/rohanbasu/trendora-backend/pkg/otp"
	"github.com/rohanbasu/trendora-backend/pkg/pubsub"
	"github.com/rohanbasu/trendora-backend/pkg/qrpay"
	"github.com/rohanbasu/trendora-backend/pkg/redis"
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

	var notificationPublisher *notify.TopicPublisher
	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Warn(context.Background(), "pubsub unavailable, notification fan-out disabled")
	} else {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		notificationPublisher = notify.NewTopicPublisher(pubsubClient.NotificationPublisher())
	}

	notifyService, err := notify.NewService(notify.NewRepository(dbClient.DB()), notificationPublisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	otpClient, err := otp.NewClient(context.Background(), cfg.OTP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create otp client", err)
		os.Exit(1)
	}
	qrClient, err := qrpay.NewClient(context.Background(), cfg.QRPay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create qr payment client", err)
		os.Exit(1)
	}

	metricsRegistry := prometheus.NewRegistry()
	deliveryMetrics := metrics.NewDeliveryMetrics(metricsRegistry)

	deliveryRepo, err := delivery.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery repository", err)
		os.Exit(1)
	}
	deliveryService, err := delivery.NewService(
		deliveryRepo,
		dbClient,
		otpClient,
		qrClient,
		notifyService,
		deliveryMetrics,
		logg,
		cfg.Delivery.AgentFeeCents,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	assignmentsService, err := assignments.NewService(deliveryRepo, dbClient, deliveryService, notifyService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignments service", err)
		os.Exit(1)
	}

	statsRepo, err := stats.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create stats repository", err)
		os.Exit(1)
	}
	statsService, err := stats.NewService(statsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stats service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			metricsRegistry,
			deliveryService,
			assignmentsService,
			statsService,
			notifyService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
