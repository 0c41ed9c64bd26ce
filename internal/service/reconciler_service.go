package service

import (
	"context"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/internal/kafka"
	"github.com/smallbizhq/billing-service/internal/metrics"
	"github.com/smallbizhq/billing-service/internal/repository"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/google/uuid"
)

// ReconcileOutcome результат обработки события вебхука
type ReconcileOutcome string

const (
	// OutcomeApplied событие применено, состояние изменилось
	OutcomeApplied ReconcileOutcome = "applied"
	// OutcomeSkipped событие подтверждено без изменения состояния
	// (повторная доставка или устаревшее по маркеру порядка)
	OutcomeSkipped ReconcileOutcome = "skipped"
	// OutcomeUnknown тип события не распознан, доставка подтверждена
	OutcomeUnknown ReconcileOutcome = "unknown"
)

// ReconcilerService приводит локальное состояние биллинга в соответствие
// с событиями платежного провайдера. Каждое событие обрабатывается ровно
// один раз: повторные доставки распознаются по журналу обработанных событий
// внутри хранилища, а не здесь.
type ReconcilerService struct {
	store         repository.BillingStore
	kafkaProducer kafka.Producer // Может быть nil, если Kafka недоступен
	metrics       metrics.BillingMetrics
	log           *logger.Logger
}

// NewReconcilerService конструктор сервиса
func NewReconcilerService(
	store repository.BillingStore,
	kafkaProducer kafka.Producer,
	m metrics.BillingMetrics,
	log *logger.Logger,
) *ReconcilerService {
	if kafkaProducer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be skipped.")
	}
	return &ReconcilerService{
		store:         store,
		kafkaProducer: kafkaProducer,
		metrics:       m,
		log:           log,
	}
}

// ProcessEvent диспетчеризует проверенное событие по его типу.
// Ошибка возвращается только при сбое персистентности: в этом случае
// доставку нельзя подтверждать, провайдер должен повторить ее позже.
func (s *ReconcilerService) ProcessEvent(ctx context.Context, event domain.WebhookEvent) (ReconcileOutcome, error) {
	s.metrics.IncWebhookReceived(string(event.Type))
	startTime := time.Now()
	defer func() {
		s.metrics.ObserveWebhookDuration(string(event.Type), time.Since(startTime).Seconds())
	}()

	var (
		applied bool
		err     error
	)

	switch event.Type {
	case domain.EventTypeCheckoutCompleted:
		applied, err = s.handleCheckoutCompleted(ctx, event)
	case domain.EventTypeInvoicePaid:
		applied, err = s.handleInvoicePaid(ctx, event)
	case domain.EventTypeSubscriptionCreated,
		domain.EventTypeSubscriptionUpdated,
		domain.EventTypeSubscriptionDeleted:
		applied, err = s.handleSubscriptionChange(ctx, event)
	default:
		// Неизвестный тип подтверждаем без записи в журнал: если провайдер
		// начнет присылать новый тип, после деплоя обработчика событие
		// с тем же ID не будет ошибочно считаться уже обработанным.
		s.log.Infow("Acknowledging unhandled event type", "eventID", event.ID, "rawType", event.RawType)
		s.metrics.IncWebhookUnknown(event.RawType)
		return OutcomeUnknown, nil
	}

	if err != nil {
		s.log.Errorw("Failed to persist webhook event", "error", err, "eventID", event.ID, "type", event.Type)
		return "", domain.NewPersistenceError("process_event", err)
	}

	if !applied {
		s.log.Infow("Event acknowledged without state change", "eventID", event.ID, "type", event.Type)
		s.metrics.IncWebhookDuplicate(string(event.Type))
		return OutcomeSkipped, nil
	}

	s.metrics.IncWebhookApplied(string(event.Type))
	return OutcomeApplied, nil
}

func (s *ReconcilerService) handleCheckoutCompleted(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	intent := domain.CheckoutIntent{
		SessionID:      event.StringField("id"),
		CustomerID:     event.StringField("customer"),
		CustomerEmail:  event.StringField("customer_email"),
		SubscriptionID: event.StringField("subscription"),
		AmountTotal:    event.Int64Field("amount_total"),
		Currency:       event.StringField("currency"),
		SourceEventID:  event.ID,
		CompletedAt:    event.Created,
	}

	s.log.Infow("Processing checkout completion", "eventID", event.ID, "sessionID", intent.SessionID, "customerID", intent.CustomerID)

	applied, err := s.store.ApplyCheckoutCompleted(ctx, event, intent)
	if err != nil {
		return false, err
	}
	if applied {
		s.publishBillingEvent(ctx, kafka.TopicCheckoutCompleted, intent.SessionID, intent)
	}
	return applied, nil
}

func (s *ReconcilerService) handleInvoicePaid(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	payment := domain.Payment{
		ID:             uuid.New(),
		InvoiceID:      event.StringField("id"),
		CustomerID:     event.StringField("customer"),
		SubscriptionID: event.StringField("subscription"),
		AmountPaid:     event.Int64Field("amount_paid"),
		Currency:       event.StringField("currency"),
		SourceEventID:  event.ID,
		PaidAt:         event.Created,
		CreatedAt:      time.Now().UTC(),
	}

	s.log.Infow("Processing invoice payment", "eventID", event.ID, "invoiceID", payment.InvoiceID, "amount", payment.AmountPaid, "currency", payment.Currency)

	applied, err := s.store.ApplyInvoicePaid(ctx, event, payment)
	if err != nil {
		return false, err
	}
	if applied {
		s.publishBillingEvent(ctx, kafka.TopicPaymentRecorded, payment.InvoiceID, payment)
	}
	return applied, nil
}

func (s *ReconcilerService) handleSubscriptionChange(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	status := domain.MapProviderSubscriptionStatus(event.StringField("status"))
	if event.Type == domain.EventTypeSubscriptionDeleted {
		status = domain.SubscriptionStatusCanceled
	}

	sub := domain.Subscription{
		SubscriptionID:   event.StringField("id"),
		CustomerID:       event.StringField("customer"),
		PlanID:           planIDFromEvent(event),
		Status:           status,
		UpdatedByEventID: event.ID,
		SourceEventTime:  event.Created,
	}
	if periodEnd := event.TimeField("current_period_end"); !periodEnd.IsZero() {
		sub.CurrentPeriodEnd = &periodEnd
	}

	s.log.Infow("Processing subscription change", "eventID", event.ID, "subscriptionID", sub.SubscriptionID, "status", sub.Status)

	applied, err := s.store.ApplySubscriptionChange(ctx, event, sub)
	if err != nil {
		return false, err
	}
	if applied {
		s.publishBillingEvent(ctx, kafka.TopicSubscriptionUpdated, sub.SubscriptionID, sub)
	}
	return applied, nil
}

// publishBillingEvent отправляет уведомление в Kafka. Публикация не влияет
// на результат обработки: состояние уже зафиксировано в хранилище.
func (s *ReconcilerService) publishBillingEvent(ctx context.Context, topic string, key string, payload interface{}) {
	if s.kafkaProducer == nil {
		s.log.Debugw("Kafka producer not available, skipping event publishing", "topic", topic, "key", key)
		return
	}

	kafkaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.kafkaProducer.PublishBillingEvent(kafkaCtx, topic, key, payload); err != nil {
		s.log.Errorw("Failed to publish billing event", "error", err, "topic", topic, "key", key)
	}
}

// planIDFromEvent извлекает ID плана из объекта подписки провайдера.
// Провайдер отдает план либо как вложенный объект plan, либо внутри
// items.data[0].price.
func planIDFromEvent(event domain.WebhookEvent) string {
	if plan, ok := event.Object["plan"].(map[string]interface{}); ok {
		if id, ok := plan["id"].(string); ok {
			return id
		}
	}
	items, ok := event.Object["items"].(map[string]interface{})
	if !ok {
		return ""
	}
	data, ok := items["data"].([]interface{})
	if !ok || len(data) == 0 {
		return ""
	}
	first, ok := data[0].(map[string]interface{})
	if !ok {
		return ""
	}
	if price, ok := first["price"].(map[string]interface{}); ok {
		if id, ok := price["id"].(string); ok {
			return id
		}
	}
	return ""
}
