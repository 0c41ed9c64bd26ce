package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbizhq/billing-service/internal/config"
	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/repository"
	"github.com/smallbizhq/billing-service/internal/service"
	"github.com/smallbizhq/billing-service/internal/stripe"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

// fakeStripeClient подменяет клиента провайдера в тестах
type fakeStripeClient struct {
	err     error
	session domain.CheckoutSession
}

func (f *fakeStripeClient) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if f.err != nil {
		return domain.CheckoutSession{}, f.err
	}
	return f.session, nil
}

type testEnv struct {
	router *gin.Engine
	store  *repository.InMemoryBillingStore
}

func newTestEnv(stripeClient stripe.Client) testEnv {
	log := newTestLogger()
	cfg := &config.Config{}
	cfg.App.Port = "4242"
	cfg.App.AllowedOrigin = "http://localhost:3000"

	store := repository.NewInMemoryBillingStore(log)
	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	router := SetupRouter(RouterDeps{
		Config:          cfg,
		CheckoutService: service.NewCheckoutService(stripeClient, billingMetrics, log),
		Reconciler:      service.NewReconcilerService(store, nil, billingMetrics, log),
		WebhookParser:   stripe.NewWebhookParser(testWebhookSecret, log),
		Reader:          store,
		Metrics:         billingMetrics,
		Registry:        registry,
		Log:             log,
	})

	return testEnv{router: router, store: store}
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEventPayload(eventID string, created time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "customer.subscription.created",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "active",
				"current_period_end": %d,
				"plan": {"id": "price_basic"}
			}
		}
	}`, eventID, created.Unix(), created.Add(30*24*time.Hour).Unix()))
}

func postWebhook(router *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(stripe.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"Server is running"}`, w.Body.String())
}

func TestUnknownRouteReturns404(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, w.Body.String())
}

func TestCreateCheckoutSessionEndpoint(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{
		session: domain.CheckoutSession{ID: "cs_1", RedirectURL: "https://checkout.stripe.com/c/pay/cs_1"},
	})

	body := `{"priceId":"price_basic","successUrl":"https://shop.example.com/success","cancelUrl":"https://shop.example.com/cancel"}`
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", resp["url"])
	assert.Equal(t, "cs_1", resp["id"])
}

func TestCreateCheckoutSessionValidationError(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})

	body := `{"successUrl":"https://shop.example.com/success","cancelUrl":"https://shop.example.com/cancel"}`
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "priceId")
}

func TestCreateCheckoutSessionUpstreamError(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{
		err: domain.NewUpstreamError("stripe", "api_error", "stripe is down", http.StatusServiceUnavailable, nil),
	})

	body := `{"priceId":"price_basic","successUrl":"https://shop.example.com/success","cancelUrl":"https://shop.example.com/cancel"}`
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	payload := subscriptionEventPayload("evt_1", time.Now())

	w := postWebhook(env.router, payload, signPayload(payload, "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	payload := subscriptionEventPayload("evt_1", time.Now())

	w := postWebhook(env.router, payload, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectionIsCounted(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	payload := subscriptionEventPayload("evt_1", time.Now())

	w := postWebhook(env.router, payload, signPayload(payload, "whsec_wrong"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `webhook_events_rejected_total{reason="signature"} 1`)
}

func TestWebhookAppliesSubscriptionEvent(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	created := time.Now().UTC().Truncate(time.Second)
	payload := subscriptionEventPayload("evt_1", created)

	w := postWebhook(env.router, payload, signPayload(payload, testWebhookSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	// Состояние доступно через read API
	req := httptest.NewRequest(http.MethodGet, "/subscriptions/sub_1", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var sub domain.Subscription
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sub))
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
}

func TestWebhookDuplicateDeliveryAcknowledged(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	payload := subscriptionEventPayload("evt_dup", time.Now().UTC())

	w := postWebhook(env.router, payload, signPayload(payload, testWebhookSecret))
	require.Equal(t, http.StatusOK, w.Code)

	w = postWebhook(env.router, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestWebhookAcknowledgesUnknownEventType(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_unknown",
		"object": "event",
		"type": "customer.tax_id.created",
		"created": %d,
		"data": {"object": {"id": "txi_1"}}
	}`, time.Now().Unix()))

	w := postWebhook(env.router, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestGetSubscriptionNotFound(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/sub_missing", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCustomerPayments(t *testing.T) {
	env := newTestEnv(&fakeStripeClient{})
	created := time.Now().UTC().Truncate(time.Second)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_in_1",
		"object": "event",
		"type": "invoice.payment_succeeded",
		"created": %d,
		"data": {
			"object": {
				"id": "in_1",
				"customer": "cus_1",
				"subscription": "sub_1",
				"amount_paid": 1500,
				"currency": "usd"
			}
		}
	}`, created.Unix()))

	w := postWebhook(env.router, payload, signPayload(payload, testWebhookSecret))
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/customers/cus_1/payments", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Payments []domain.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Payments, 1)
	assert.Equal(t, int64(1500), body.Payments[0].AmountPaid)
}
