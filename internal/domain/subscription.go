package domain

import "time"

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription представляет локальную запись о подписке, обновляемую
// событиями вебхуков. SourceEventTime хранит маркер порядка (unix `created`
// события провайдера): устаревшая повторная доставка не должна перезаписать
// более позднее примененное событие.
type Subscription struct {
	SubscriptionID   string             `json:"subscription_id"`
	CustomerID       string             `json:"customer_id"`
	PlanID           string             `json:"plan_id"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	UpdatedByEventID string             `json:"updated_by_event_id"`
	SourceEventTime  time.Time          `json:"source_event_time"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// MapProviderSubscriptionStatus приводит статус подписки провайдера к
// локальному перечислению. Неизвестные статусы считаем incomplete:
// это безопасный дефолт до следующего события.
func MapProviderSubscriptionStatus(providerStatus string) SubscriptionStatus {
	switch providerStatus {
	case "active", "trialing":
		return SubscriptionStatusActive
	case "past_due", "unpaid":
		return SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return SubscriptionStatusCanceled
	default:
		return SubscriptionStatusIncomplete
	}
}

// CheckoutIntent представляет факт завершения checkout-сессии: клиент
// оплатил, подписка у провайдера уже создана или вот-вот появится.
type CheckoutIntent struct {
	SessionID      string    `json:"session_id"`
	CustomerID     string    `json:"customer_id"`
	CustomerEmail  string    `json:"customer_email,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	AmountTotal    int64     `json:"amount_total"`
	Currency       string    `json:"currency"`
	SourceEventID  string    `json:"source_event_id"`
	CompletedAt    time.Time `json:"completed_at"`
}
