package repository

import (
	"context"
	"sync"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"
)

// InMemoryBillingStore реализация хранилища биллинга в памяти.
// Используется в тестах и при запуске без настроенной базы данных.
// Один мьютекс покрывает журнал и состояние, поэтому проверка-и-вставка
// ID события атомарна по отношению к мутации.
type InMemoryBillingStore struct {
	mutex         sync.RWMutex
	processed     map[string]ProcessedEvent
	subscriptions map[string]domain.Subscription
	intents       map[string]domain.CheckoutIntent
	payments      []domain.Payment
	log           *logger.Logger
}

// NewInMemoryBillingStore создает новое хранилище биллинга в памяти
func NewInMemoryBillingStore(log *logger.Logger) *InMemoryBillingStore {
	return &InMemoryBillingStore{
		processed:     make(map[string]ProcessedEvent),
		subscriptions: make(map[string]domain.Subscription),
		intents:       make(map[string]domain.CheckoutIntent),
		log:           log,
	}
}

// markProcessed вставляет событие в журнал. Возвращает false, если событие
// уже обработано. Вызывается только под мьютексом записи.
func (s *InMemoryBillingStore) markProcessed(event domain.WebhookEvent) bool {
	if _, exists := s.processed[event.ID]; exists {
		return false
	}
	s.processed[event.ID] = ProcessedEvent{
		EventID:    event.ID,
		EventType:  event.RawType,
		ReceivedAt: event.ReceivedAt,
	}
	return true
}

// ApplyCheckoutCompleted фиксирует завершение checkout-сессии
func (s *InMemoryBillingStore) ApplyCheckoutCompleted(ctx context.Context, event domain.WebhookEvent, intent domain.CheckoutIntent) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.markProcessed(event) {
		return false, nil
	}

	s.intents[intent.SessionID] = intent

	// Если сессия уже несет ID подписки, заводим ожидающую запись.
	// Событие subscription._ уточнит ее с учетом инварианта порядка.
	if intent.SubscriptionID != "" {
		s.upsertSubscription(event, domain.Subscription{
			SubscriptionID:   intent.SubscriptionID,
			CustomerID:       intent.CustomerID,
			Status:           domain.SubscriptionStatusIncomplete,
			UpdatedByEventID: event.ID,
			SourceEventTime:  event.Created,
		})
	}

	return true, nil
}

// ApplyInvoicePaid добавляет запись о платеже
func (s *InMemoryBillingStore) ApplyInvoicePaid(ctx context.Context, event domain.WebhookEvent, payment domain.Payment) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.markProcessed(event) {
		return false, nil
	}

	payment.CreatedAt = time.Now().UTC()
	s.payments = append(s.payments, payment)
	return true, nil
}

// ApplySubscriptionChange выполняет upsert подписки с учетом порядка событий
func (s *InMemoryBillingStore) ApplySubscriptionChange(ctx context.Context, event domain.WebhookEvent, sub domain.Subscription) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.markProcessed(event) {
		return false, nil
	}

	return s.upsertSubscription(event, sub), nil
}

// upsertSubscription применяет запись, если она не старше уже примененной.
// Вызывается только под мьютексом записи.
func (s *InMemoryBillingStore) upsertSubscription(event domain.WebhookEvent, sub domain.Subscription) bool {
	now := time.Now().UTC()

	existing, exists := s.subscriptions[sub.SubscriptionID]
	if exists {
		// Инвариант порядка: устаревшее событие не перезаписывает состояние
		if event.Created.Before(existing.SourceEventTime) {
			s.log.Warnw("Skipping stale subscription event",
				"subscriptionID", sub.SubscriptionID,
				"eventID", event.ID,
				"eventTime", event.Created,
				"appliedEventTime", existing.SourceEventTime)
			return false
		}
		sub.CreatedAt = existing.CreatedAt
		// Не затираем поля, которые событие не несет
		if sub.CustomerID == "" {
			sub.CustomerID = existing.CustomerID
		}
		if sub.PlanID == "" {
			sub.PlanID = existing.PlanID
		}
		if sub.CurrentPeriodEnd == nil {
			sub.CurrentPeriodEnd = existing.CurrentPeriodEnd
		}
	} else {
		sub.CreatedAt = now
	}

	sub.UpdatedAt = now
	s.subscriptions[sub.SubscriptionID] = sub
	return true
}

// HasProcessedEvent проверяет наличие события в журнале
func (s *InMemoryBillingStore) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.processed[eventID]
	return exists, nil
}

// GetSubscription возвращает подписку по ID
func (s *InMemoryBillingStore) GetSubscription(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sub, exists := s.subscriptions[subscriptionID]
	if !exists {
		return domain.Subscription{}, ErrNotFound
	}
	return sub, nil
}

// GetSubscriptionsByCustomer возвращает подписки клиента
func (s *InMemoryBillingStore) GetSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var subs []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// GetPaymentsByCustomer возвращает платежи клиента
func (s *InMemoryBillingStore) GetPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var payments []domain.Payment
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

// GetCheckoutIntent возвращает зафиксированное завершение checkout-сессии
func (s *InMemoryBillingStore) GetCheckoutIntent(ctx context.Context, sessionID string) (domain.CheckoutIntent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	intent, exists := s.intents[sessionID]
	if !exists {
		return domain.CheckoutIntent{}, ErrNotFound
	}
	return intent, nil
}
