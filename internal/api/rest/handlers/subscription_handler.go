package handlers

import (
	"errors"
	"net/http"

	"github.com/smallbizhq/billing-service/internal/repository"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler обработчик для чтения состояния биллинга
type SubscriptionHandler struct {
	reader repository.SubscriptionReader
	log    *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(reader repository.SubscriptionReader, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		reader: reader,
		log:    log,
	}
}

// GetSubscription обрабатывает GET /subscriptions/:subscription_id
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	subscriptionID := c.Param("subscription_id")
	if subscriptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription_id is required"})
		return
	}

	sub, err := h.reader.GetSubscription(c.Request.Context(), subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
			return
		}
		h.log.Error("Failed to get subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetCustomerSubscriptions обрабатывает GET /customers/:customer_id/subscriptions
func (h *SubscriptionHandler) GetCustomerSubscriptions(c *gin.Context) {
	customerID := c.Param("customer_id")
	if customerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id is required"})
		return
	}

	subs, err := h.reader.GetSubscriptionsByCustomer(c.Request.Context(), customerID)
	if err != nil {
		h.log.Error("Failed to get customer subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// GetCustomerPayments обрабатывает GET /customers/:customer_id/payments
func (h *SubscriptionHandler) GetCustomerPayments(c *gin.Context) {
	customerID := c.Param("customer_id")
	if customerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id is required"})
		return
	}

	payments, err := h.reader.GetPaymentsByCustomer(c.Request.Context(), customerID)
	if err != nil {
		h.log.Error("Failed to get customer payments: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
