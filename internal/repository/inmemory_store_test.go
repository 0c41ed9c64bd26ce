package repository

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

func makeEvent(id string, eventType domain.EventType, created time.Time, object map[string]interface{}) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:         id,
		Type:       eventType,
		RawType:    string(eventType),
		Created:    created,
		Object:     object,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestApplySubscriptionChangeIdempotent(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	event := makeEvent("evt_123", domain.EventTypeSubscriptionCreated, created, nil)
	sub := domain.Subscription{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		Status:           domain.SubscriptionStatusActive,
		UpdatedByEventID: event.ID,
		SourceEventTime:  created,
	}

	applied, err := store.ApplySubscriptionChange(ctx, event, sub)
	require.NoError(t, err)
	assert.True(t, applied)

	// Повторная доставка того же события не меняет состояние
	applied, err = store.ApplySubscriptionChange(ctx, event, sub)
	require.NoError(t, err)
	assert.False(t, applied)

	processed, err := store.HasProcessedEvent(ctx, "evt_123")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestApplySubscriptionChangeOrdering(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	later := makeEvent("evt_2", domain.EventTypeSubscriptionUpdated, base.Add(time.Minute), nil)
	applied, err := store.ApplySubscriptionChange(ctx, later, domain.Subscription{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		Status:           domain.SubscriptionStatusCanceled,
		UpdatedByEventID: later.ID,
		SourceEventTime:  later.Created,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// Более раннее событие приходит с опозданием и не должно перезаписать состояние
	earlier := makeEvent("evt_1", domain.EventTypeSubscriptionUpdated, base, nil)
	applied, err = store.ApplySubscriptionChange(ctx, earlier, domain.Subscription{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		Status:           domain.SubscriptionStatusActive,
		UpdatedByEventID: earlier.ID,
		SourceEventTime:  earlier.Created,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	// Но событие попадает в журнал: повторная доставка тоже будет пропущена
	processed, err := store.HasProcessedEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	sub, err := store.GetSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, "evt_2", sub.UpdatedByEventID)
}

func TestApplySubscriptionChangePreservesFields(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	periodEnd := base.Add(30 * 24 * time.Hour)

	first := makeEvent("evt_1", domain.EventTypeSubscriptionCreated, base, nil)
	_, err := store.ApplySubscriptionChange(ctx, first, domain.Subscription{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		PlanID:           "price_basic",
		Status:           domain.SubscriptionStatusActive,
		CurrentPeriodEnd: &periodEnd,
		UpdatedByEventID: first.ID,
		SourceEventTime:  first.Created,
	})
	require.NoError(t, err)

	// Событие без плана и периода не должно затереть известные поля
	second := makeEvent("evt_2", domain.EventTypeSubscriptionUpdated, base.Add(time.Minute), nil)
	applied, err := store.ApplySubscriptionChange(ctx, second, domain.Subscription{
		SubscriptionID:   "sub_1",
		Status:           domain.SubscriptionStatusPastDue,
		UpdatedByEventID: second.ID,
		SourceEventTime:  second.Created,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	sub, err := store.GetSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_basic", sub.PlanID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*sub.CurrentPeriodEnd))
}

func TestApplyCheckoutCompletedCreatesPendingSubscription(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	event := makeEvent("evt_cs_1", domain.EventTypeCheckoutCompleted, created, nil)
	intent := domain.CheckoutIntent{
		SessionID:      "cs_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		AmountTotal:    1500,
		Currency:       "usd",
		SourceEventID:  event.ID,
		CompletedAt:    created,
	}

	applied, err := store.ApplyCheckoutCompleted(ctx, event, intent)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := store.GetCheckoutIntent(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), stored.AmountTotal)

	sub, err := store.GetSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusIncomplete, sub.Status)
}

func TestApplyInvoicePaidRecordsPayment(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	event := makeEvent("evt_in_1", domain.EventTypeInvoicePaid, created, nil)
	applied, err := store.ApplyInvoicePaid(ctx, event, domain.Payment{
		InvoiceID:      "in_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		AmountPaid:     1500,
		Currency:       "usd",
		SourceEventID:  event.ID,
		PaidAt:         created,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	payments, err := store.GetPaymentsByCustomer(ctx, "cus_1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(1500), payments[0].AmountPaid)
}

func TestConcurrentDuplicateDeliveriesApplyOnce(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	event := makeEvent("evt_race", domain.EventTypeSubscriptionCreated, created, nil)
	sub := domain.Subscription{
		SubscriptionID:   "sub_race",
		CustomerID:       "cus_1",
		Status:           domain.SubscriptionStatusActive,
		UpdatedByEventID: event.ID,
		SourceEventTime:  created,
	}

	const workers = 16
	var wg sync.WaitGroup
	appliedCount := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := store.ApplySubscriptionChange(ctx, event, sub)
			assert.NoError(t, err)
			appliedCount <- applied
		}()
	}
	wg.Wait()
	close(appliedCount)

	total := 0
	for applied := range appliedCount {
		if applied {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one delivery should apply")
}

func TestGetSubscriptionNotFound(t *testing.T) {
	store := NewInMemoryBillingStore(newTestLogger())

	_, err := store.GetSubscription(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
