package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RaikyD/esim-fulfillment-service/internal/application"
	"github.com/RaikyD/esim-fulfillment-service/internal/config"
	"github.com/RaikyD/esim-fulfillment-service/internal/email"
	"github.com/RaikyD/esim-fulfillment-service/internal/firoam"
	"github.com/RaikyD/esim-fulfillment-service/internal/kafka"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
	"github.com/RaikyD/esim-fulfillment-service/internal/metrics"
	"github.com/RaikyD/esim-fulfillment-service/internal/migrate"
	"github.com/RaikyD/esim-fulfillment-service/internal/presentation"
	"github.com/RaikyD/esim-fulfillment-service/internal/presentation/helpers"
	"github.com/RaikyD/esim-fulfillment-service/internal/repository"
	"github.com/RaikyD/esim-fulfillment-service/internal/vault"
)

func main() {
	logger.Init()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("config load failed", "err", err)
	}

	// DB pool
	pool, err := pgxpool.New(context.Background(), cfg.DB_STRING)
	if err != nil {
		logger.Fatal("pgxpool new failed", "err", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("db ping failed", "err", err)
	}
	logger.Info("db connected")

	if err := migrate.Up(cfg.DB_STRING); err != nil {
		logger.Fatal("migrations failed", "err", err)
	}

	v, err := vault.New(cfg.ENCRYPTION_KEY)
	if err != nil {
		logger.Fatal("vault init failed", "err", err)
	}

	// Wiring
	repo := repository.NewDeliveryRepository(pool)
	vendor := firoam.NewClient(firoam.Config{
		BaseURL:    cfg.VENDOR_BASE_URL,
		Phone:      cfg.VENDOR_PHONE,
		Password:   cfg.VENDOR_PASSWORD,
		SignSecret: cfg.VENDOR_SIGN_SECRET,
	}, repo, v)

	// Kafka producer для пути вебхука
	prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_TOPIC)
	defer prod.Close()

	svc := application.NewFulfillmentService(repo, vendor, v, email.LogSender{}, prod)

	// Пул воркеров: читает из cfg.KAFKA_TOPIC, ходит к вендору, двигает
	// статусы Delivery
	_ = kafka.StartConsumers(
		context.Background(),
		svc,
		kafka.ConsumerConfig{
			Brokers:     cfg.KAFKA_BROKERS,
			Topic:       cfg.KAFKA_TOPIC,
			GroupID:     cfg.KAFKA_GROUP_ID,
			Concurrency: cfg.WORKER_CONCURRENCY,
			MaxAttempts: cfg.WORKER_MAX_ATTEMPTS,
		},
	)

	metrics.RegisterDefault()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API
	h := presentation.NewFulfillmentHandler(svc, cfg.WEBHOOK_HMAC_SECRET)
	h.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":" + cfg.HTTP_PORT
	logger.Info("starting http", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("http server crashed", "err", err)
	}
}
