package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const providerName = "stripe"

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCheckoutSession создает hosted checkout-сессию в режиме подписки
	// и возвращает URL для редиректа клиента.
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error)
}

// stripeClient реализует интерфейс Client через официальный SDK.
type stripeClient struct {
	client *client.API
	log    *logger.Logger
}

// NewClient создает новый экземпляр клиента Stripe.
func NewClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeClient{
		client: sc,
		log:    log,
	}
}

// CreateCheckoutSession создает checkout-сессию в Stripe.
// Параметры сессии: одна позиция, режим subscription, промокоды разрешены.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	sess, err := sc.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCheckoutSession", err)
		return domain.CheckoutSession{}, wrapStripeError("failed to create checkout session", err)
	}

	if sess.URL == "" {
		// Провайдер обязан вернуть redirect URL для hosted-сессии
		sc.log.Errorw("Stripe returned checkout session without redirect URL", "sessionID", sess.ID)
		return domain.CheckoutSession{}, domain.NewUpstreamError(providerName, "missing_url",
			"checkout session has no redirect URL", http.StatusBadGateway, nil)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", sess.ID, "priceID", req.PriceID)
	return domain.CheckoutSession{
		ID:          sess.ID,
		RedirectURL: sess.URL,
	}, nil
}

// wrapStripeError оборачивает ошибку SDK в доменную UpstreamError,
// сохраняя сообщение провайдера для вызывающей стороны.
func wrapStripeError(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = message
		}
		return domain.NewUpstreamError(providerName, string(stripeErr.Code), msg, stripeErr.HTTPStatusCode, err)
	}
	// Сетевые и прочие не-Stripe ошибки
	return domain.NewUpstreamError(providerName, "unavailable", message, http.StatusBadGateway, err)
}

// IsRetryableError проверяет, имеет ли смысл повторить вызов Stripe.
func IsRetryableError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		// Rate Limit ловим по коду 429
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		// stripe-go v78 не экспортирует ErrorTypeAPIConnection; сравниваем с его значением
		if stripeErr.Type == stripe.ErrorType("api_connection_error") {
			return true
		}
		// Серверные ошибки Stripe могут быть временными, 501 не retryable
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented {
			return true
		}
		return false
	}
	// Таймаут контекста повторять с тем же дедлайном бессмысленно
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return false
}

// logStripeError логирует детали ошибки Stripe
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw(fmt.Sprintf("Stripe API error during %s", operation),
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"msg", stripeErr.Msg,
			"requestID", stripeErr.RequestID,
			"statusCode", stripeErr.HTTPStatusCode,
		)
		return
	}
	log.Errorw(fmt.Sprintf("Non-Stripe error during %s", operation), "error", err)
}
