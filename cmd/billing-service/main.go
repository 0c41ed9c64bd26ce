package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smallbizhq/billing-service/internal/api/rest"
	"github.com/smallbizhq/billing-service/internal/config"
	"github.com/smallbizhq/billing-service/internal/kafka"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/repository"
	"github.com/smallbizhq/billing-service/internal/service"
	"github.com/smallbizhq/billing-service/internal/stripe"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log := initLogger()

	log.Infow("Billing service starting up...")

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfg.Stripe.APIKey == "" {
		log.Warnw("Stripe API Key is not set, checkout session creation will fail!")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warnw("Stripe webhook secret is not set, webhook deliveries will be rejected!")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Выбираем хранилище: Postgres при наличии DSN, иначе in-memory
	var store repository.BillingStore
	if cfg.Database.DSN != "" {
		pool, err := repository.Connect(ctx, cfg.Database.DSN, log)
		if err != nil {
			log.Fatalw("Failed to connect to database", "error", err)
		}
		defer pool.Close()

		pgStore := repository.NewPostgresBillingStore(pool, log)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalw("Failed to ensure database schema", "error", err)
		}
		store = pgStore
		log.Infow("Database connection established")
	} else {
		log.Warnw("Database DSN is not set, using in-memory store. State will be lost on restart.")
		store = repository.NewInMemoryBillingStore(log)
	}

	// Подключаем Redis кеш поверх хранилища, если он доступен
	if cfg.Redis.Addr != "" {
		redisCache, err := repository.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			log.Infow("Redis cache initialized successfully")
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Errorw("Error closing Redis connection", "error", err)
				}
			}()
			store = repository.NewCachedBillingStore(store, redisCache, log)
		}
	}

	// Инициализируем Kafka Producer. Не фатально: публикация событий
	// не критична для основного флоу.
	var kafkaProducer kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		if err := kafka.EnsureKafkaTopics(cfg.Kafka.Brokers, log); err != nil {
			log.Errorw("Failed to ensure Kafka topics", "error", err)
		}
		kafkaProducer, err = kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			log.Infow("Kafka producer initialized")
			defer func() {
				if err := kafkaProducer.Close(); err != nil {
					log.Errorw("Error closing Kafka producer", "error", err)
				}
			}()
		}
	} else {
		log.Warnw("Kafka brokers are not configured, event publishing disabled")
	}

	// Метрики
	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	// Интеграция с платежным провайдером
	stripeClient := stripe.NewClient(cfg.Stripe.APIKey, log)
	webhookParser := stripe.NewWebhookParser(cfg.Stripe.WebhookSecret, log)

	// Service layer
	checkoutService := service.NewCheckoutService(stripeClient, billingMetrics, log)
	reconciler := service.NewReconcilerService(store, kafkaProducer, billingMetrics, log)

	// HTTP сервер
	router := rest.SetupRouter(rest.RouterDeps{
		Config:          cfg,
		CheckoutService: checkoutService,
		Reconciler:      reconciler,
		WebhookParser:   webhookParser,
		Reader:          store,
		Metrics:         billingMetrics,
		Registry:        registry,
		Log:             log,
	})

	server := rest.NewServer(router, cfg, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Cleanup finished. Goodbye!")
}

// initLogger инициализирует новый логгер
func initLogger() *logger.Logger {
	logLevel := logger.INFO
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = logger.DEBUG
	}
	return logger.New(logLevel)
}
