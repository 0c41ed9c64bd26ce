package domain

import "time"

// EventType тип события вебхука. Закрытое перечисление с явной веткой
// unknown: новые типы провайдера не должны ломать доставку.
type EventType string

const (
	EventTypeCheckoutCompleted   EventType = "checkout.session.completed"
	EventTypeInvoicePaid         EventType = "invoice.payment_succeeded"
	EventTypeSubscriptionCreated EventType = "customer.subscription.created"
	EventTypeSubscriptionUpdated EventType = "customer.subscription.updated"
	EventTypeSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventTypeUnknown             EventType = "unknown"
)

// ParseEventType преобразует строку типа события провайдера в EventType
func ParseEventType(raw string) EventType {
	switch EventType(raw) {
	case EventTypeCheckoutCompleted,
		EventTypeInvoicePaid,
		EventTypeSubscriptionCreated,
		EventTypeSubscriptionUpdated,
		EventTypeSubscriptionDeleted:
		return EventType(raw)
	default:
		return EventTypeUnknown
	}
}

// WebhookEvent представляет проверенное событие от платежного провайдера.
// RawPayload хранит исходные байты тела запроса: подпись считается именно
// по ним, и они никогда не восстанавливаются из распарсенного представления.
type WebhookEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	RawType    string                 `json:"raw_type"`
	Created    time.Time              `json:"created"`
	RawPayload []byte                 `json:"-"`
	Object     map[string]interface{} `json:"-"`
	ReceivedAt time.Time              `json:"received_at"`
}

// StringField безопасно извлекает строковое поле из объекта события
func (e WebhookEvent) StringField(key string) string {
	if val, ok := e.Object[key].(string); ok {
		return val
	}
	return ""
}

// Int64Field безопасно извлекает целочисленное поле из объекта события.
// JSON-декодер отдает числа как float64, даже если они целые.
func (e WebhookEvent) Int64Field(key string) int64 {
	switch v := e.Object[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// TimeField безопасно извлекает Unix timestamp из объекта события
func (e WebhookEvent) TimeField(key string) time.Time {
	unix := e.Int64Field(key)
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}
