package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment представляет запись об успешно оплаченном инвойсе.
// Событие invoice.payment_succeeded только добавляет запись и само по себе
// не меняет статус подписки.
type Payment struct {
	ID             uuid.UUID `json:"id"`
	InvoiceID      string    `json:"invoice_id"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	AmountPaid     int64     `json:"amount_paid"`
	Currency       string    `json:"currency"`
	SourceEventID  string    `json:"source_event_id"`
	PaidAt         time.Time `json:"paid_at"`
	CreatedAt      time.Time `json:"created_at"`
}
