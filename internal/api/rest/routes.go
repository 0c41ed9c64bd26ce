package rest

import (
	"net/http"
	"time"

	"github.com/smallbizhq/billing-service/internal/api/rest/handlers"
	"github.com/smallbizhq/billing-service/internal/api/rest/middleware"
	"github.com/smallbizhq/billing-service/internal/config"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/repository"
	"github.com/smallbizhq/billing-service/internal/service"
	"github.com/smallbizhq/billing-service/internal/stripe"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps зависимости маршрутизатора
type RouterDeps struct {
	Config          *config.Config
	CheckoutService *service.CheckoutService
	Reconciler      *service.ReconcilerService
	WebhookParser   *stripe.WebhookParser
	Reader          repository.SubscriptionReader
	Metrics         metrics.BillingMetrics
	Registry        *prometheus.Registry
	Log             *logger.Logger
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{deps.Config.App.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	// Инициализация обработчиков
	checkoutHandler := handlers.NewCheckoutHandler(deps.CheckoutService, deps.Log)
	webhookHandler := handlers.NewWebhookHandler(deps.WebhookParser, deps.Reconciler, deps.Metrics, deps.Log)
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Reader, deps.Log)

	// Основные endpoint-ы биллинга
	r.POST("/create-checkout-session", checkoutHandler.CreateCheckoutSession)
	r.POST("/webhook", webhookHandler.HandleWebhook)

	// Чтение состояния биллинга
	r.GET("/subscriptions/:subscription_id", subscriptionHandler.GetSubscription)
	customers := r.Group("/customers")
	{
		customers.GET("/:customer_id/subscriptions", subscriptionHandler.GetCustomerSubscriptions)
		customers.GET("/:customer_id/payments", subscriptionHandler.GetCustomerPayments)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return r
}
