package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/service"
	"github.com/smallbizhq/billing-service/internal/stripe"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler обработчик вебхуков платежного провайдера.
// Тело запроса читается в сыром виде: подпись проверяется по исходным
// байтам, а не по перекодированному JSON.
type WebhookHandler struct {
	parser     *stripe.WebhookParser
	reconciler *service.ReconcilerService
	metrics    metrics.BillingMetrics
	log        *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(parser *stripe.WebhookParser, reconciler *service.ReconcilerService, m metrics.BillingMetrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:     parser,
		reconciler: reconciler,
		metrics:    m,
		log:        log,
	}
}

// HandleWebhook обрабатывает POST /webhook.
// Статусы ответа значимы для провайдера: 2xx подтверждает доставку,
// 4xx означает отказ без повтора, 5xx заставляет провайдера повторить позже.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Error("Failed to read webhook body: %v", err)
		h.metrics.IncWebhookRejected("read_body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	event, err := h.parser.ParseEvent(bodyBytes, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		var sigErr *domain.SignatureError
		if errors.As(err, &sigErr) {
			h.log.Warn("Webhook signature verification failed: %v", err)
			h.metrics.IncWebhookRejected("signature")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed"})
			return
		}
		h.log.Error("Failed to parse webhook event: %v", err)
		h.metrics.IncWebhookRejected("payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	if _, err := h.reconciler.ProcessEvent(c.Request.Context(), event); err != nil {
		var persistErr *domain.PersistenceError
		if errors.As(err, &persistErr) {
			// 5xx, чтобы провайдер повторил доставку
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
			return
		}
		h.log.Error("Unexpected error processing webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
