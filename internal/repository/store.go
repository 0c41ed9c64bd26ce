package repository

import (
	"context"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
)

// BillingStore определяет транзакционное хранилище состояния биллинга.
//
// Каждый Apply-метод атомарно выполняет две вещи: проверяет-и-вставляет
// ID события в журнал обработанных событий и применяет мутацию состояния.
// Возвращаемое значение applied=false означает, что состояние не изменилось:
// либо событие уже обработано (повторная доставка), либо оно устарело по
// маркеру порядка. В обоих случаях доставку следует подтвердить.
type BillingStore interface {
	// ApplyCheckoutCompleted фиксирует завершение checkout-сессии и
	// помечает подписку клиента как ожидающую активации (incomplete).
	ApplyCheckoutCompleted(ctx context.Context, event domain.WebhookEvent, intent domain.CheckoutIntent) (applied bool, err error)

	// ApplyInvoicePaid добавляет запись о платеже. Статус подписки
	// при этом не меняется.
	ApplyInvoicePaid(ctx context.Context, event domain.WebhookEvent, payment domain.Payment) (applied bool, err error)

	// ApplySubscriptionChange выполняет upsert записи о подписке с учетом
	// инварианта порядка: событие с более ранним маркером не перезаписывает
	// уже примененное более позднее.
	ApplySubscriptionChange(ctx context.Context, event domain.WebhookEvent, sub domain.Subscription) (applied bool, err error)

	// HasProcessedEvent проверяет наличие события в журнале обработанных.
	HasProcessedEvent(ctx context.Context, eventID string) (bool, error)

	SubscriptionReader
}

// SubscriptionReader определяет читающую часть хранилища.
// Вынесена отдельно, чтобы кеширующий декоратор оборачивал только чтения.
type SubscriptionReader interface {
	// GetSubscription возвращает подписку по ID провайдера.
	GetSubscription(ctx context.Context, subscriptionID string) (domain.Subscription, error)

	// GetSubscriptionsByCustomer возвращает подписки клиента.
	GetSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error)

	// GetPaymentsByCustomer возвращает платежи клиента.
	GetPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error)
}

// ProcessedEvent запись журнала обработанных событий
type ProcessedEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	ReceivedAt time.Time `json:"received_at"`
}
