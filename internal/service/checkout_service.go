package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/stripe"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// Таймаут на весь процесс создания сессии, включая повторные попытки
const checkoutTimeout = 30 * time.Second

// CheckoutService создает сессии оплаты у платежного провайдера.
// Валидация входных данных выполняется до обращения к провайдеру:
// невалидный запрос не должен стоить ни одного внешнего вызова.
type CheckoutService struct {
	stripeClient stripe.Client
	metrics      metrics.BillingMetrics
	log          *logger.Logger
}

// NewCheckoutService конструктор сервиса
func NewCheckoutService(stripeClient stripe.Client, m metrics.BillingMetrics, log *logger.Logger) *CheckoutService {
	return &CheckoutService{
		stripeClient: stripeClient,
		metrics:      m,
		log:          log,
	}
}

// CreateCheckoutSession валидирует запрос и создает сессию оплаты.
// Временные сбои провайдера повторяются с экспоненциальной задержкой,
// постоянные ошибки (невалидный ключ, несуществующий price) возвращаются сразу.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			s.log.Warnw("Checkout request validation failed", "fields", verrs.Fields())
		}
		s.metrics.IncCheckoutFailed("validation")
		return domain.CheckoutSession{}, err
	}

	s.log.Infow("Creating checkout session", "priceID", req.PriceID, "hasEmail", req.CustomerEmail != "")
	startTime := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, checkoutTimeout)
	defer cancel()

	var session domain.CheckoutSession
	operation := func() error {
		var opErr error
		session, opErr = s.stripeClient.CreateCheckoutSession(opCtx, req)
		if opErr == nil {
			return nil
		}
		if stripe.IsRetryableError(opErr) {
			s.log.Warnw("Retryable error from payment provider, will retry", "error", opErr)
			return opErr
		}
		return backoff.Permanent(opErr)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = checkoutTimeout
	bo.Reset()

	if err := backoff.Retry(operation, backoff.WithContext(bo, opCtx)); err != nil {
		// Истекший дедлайн тоже ошибка провайдера: вызывающая сторона
		// должна получить 502, а не непрозрачную внутреннюю ошибку
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = domain.NewUpstreamError("stripe", "timeout", "payment provider request timed out", http.StatusGatewayTimeout, err)
		}
		s.log.Errorw("Failed to create checkout session", "error", err, "priceID", req.PriceID)
		s.metrics.IncCheckoutFailed("upstream")
		return domain.CheckoutSession{}, err
	}

	s.metrics.IncCheckoutCreated()
	s.log.Infow("Checkout session created", "sessionID", session.ID, "durationMs", time.Since(startTime).Milliseconds())
	return session, nil
}
