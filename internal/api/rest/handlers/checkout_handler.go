package handlers

import (
	"errors"
	"net/http"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/internal/service"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CheckoutHandler обработчик для создания сессий оплаты
type CheckoutHandler struct {
	checkoutService *service.CheckoutService
	log             *logger.Logger
}

// NewCheckoutHandler создает новый обработчик checkout
func NewCheckoutHandler(checkoutService *service.CheckoutService, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		log:             log,
	}
}

// CreateCheckoutSession обрабатывает POST /create-checkout-session.
// Тело запроса биндится мягко: валидация полей выполняется в сервисе,
// чтобы клиент получил список всех невалидных полей одним ответом.
func (h *CheckoutHandler) CreateCheckoutSession(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Failed to bind checkout request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	session, err := h.checkoutService.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":  session.ID,
		"url": session.RedirectURL,
	})
}

func (h *CheckoutHandler) respondError(c *gin.Context, err error) {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  verrs.Error(),
			"fields": verrs.Fields(),
		})
		return
	}

	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider is unavailable"})
		return
	}

	h.log.Error("Unexpected error creating checkout session: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
