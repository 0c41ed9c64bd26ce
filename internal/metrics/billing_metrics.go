package metrics

import (
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncCheckoutCreated()
	IncCheckoutFailed(reason string)
	IncWebhookReceived(eventType string)
	IncWebhookApplied(eventType string)
	IncWebhookDuplicate(eventType string)
	IncWebhookRejected(reason string)
	IncWebhookUnknown(rawType string)
	ObserveWebhookDuration(eventType string, seconds float64)
}

type billingMetrics struct {
	log              *logger.Logger
	checkoutsCreated prometheus.Counter
	checkoutsFailed  *prometheus.CounterVec
	webhooksReceived *prometheus.CounterVec
	webhooksOutcome  *prometheus.CounterVec
	webhooksRejected *prometheus.CounterVec
	webhooksUnknown  *prometheus.CounterVec
	webhookDuration  *prometheus.HistogramVec
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	checkoutsCreated := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_created_total",
			Help: "The total number of created checkout sessions",
		},
	)

	checkoutsFailed := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_failed_total",
			Help: "The total number of failed checkout session attempts",
		},
		[]string{"reason"},
	)

	webhooksReceived := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_received_total",
			Help: "The total number of received webhook events",
		},
		[]string{"event_type"},
	)

	webhooksOutcome := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_outcome_total",
			Help: "The total number of webhook events by processing outcome",
		},
		[]string{"outcome", "event_type"},
	)

	webhooksRejected := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_rejected_total",
			Help: "The total number of rejected webhook deliveries",
		},
		[]string{"reason"},
	)

	webhooksUnknown := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_unknown_total",
			Help: "The total number of webhook events with unrecognized type",
		},
		[]string{"raw_type"},
	)

	webhookDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Webhook event processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	return &billingMetrics{
		log:              log,
		checkoutsCreated: checkoutsCreated,
		checkoutsFailed:  checkoutsFailed,
		webhooksReceived: webhooksReceived,
		webhooksOutcome:  webhooksOutcome,
		webhooksRejected: webhooksRejected,
		webhooksUnknown:  webhooksUnknown,
		webhookDuration:  webhookDuration,
	}
}

// IncCheckoutCreated увеличивает счетчик созданных сессий оплаты
func (m *billingMetrics) IncCheckoutCreated() {
	m.checkoutsCreated.Inc()
}

// IncCheckoutFailed увеличивает счетчик неудачных попыток создания сессии
func (m *billingMetrics) IncCheckoutFailed(reason string) {
	m.checkoutsFailed.WithLabelValues(reason).Inc()
}

// IncWebhookReceived увеличивает счетчик полученных событий
func (m *billingMetrics) IncWebhookReceived(eventType string) {
	m.webhooksReceived.WithLabelValues(eventType).Inc()
}

// IncWebhookApplied увеличивает счетчик примененных событий
func (m *billingMetrics) IncWebhookApplied(eventType string) {
	m.webhooksOutcome.WithLabelValues("applied", eventType).Inc()
}

// IncWebhookDuplicate увеличивает счетчик доставок, подтвержденных без
// изменения состояния (повтор или устаревшее событие)
func (m *billingMetrics) IncWebhookDuplicate(eventType string) {
	m.webhooksOutcome.WithLabelValues("duplicate", eventType).Inc()
}

// IncWebhookRejected увеличивает счетчик отклоненных доставок
func (m *billingMetrics) IncWebhookRejected(reason string) {
	m.webhooksRejected.WithLabelValues(reason).Inc()
}

// IncWebhookUnknown увеличивает счетчик событий неизвестного типа
func (m *billingMetrics) IncWebhookUnknown(rawType string) {
	m.webhooksUnknown.WithLabelValues(rawType).Inc()
}

// ObserveWebhookDuration записывает длительность обработки события
func (m *billingMetrics) ObserveWebhookDuration(eventType string, seconds float64) {
	m.webhookDuration.WithLabelValues(eventType).Observe(seconds)
}
