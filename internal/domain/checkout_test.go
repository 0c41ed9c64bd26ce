package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutRequestValidate(t *testing.T) {
	tests := []struct {
		name       string
		req        CheckoutRequest
		wantFields []string
	}{
		{
			name: "valid request",
			req: CheckoutRequest{
				PriceID:    "price_basic",
				SuccessURL: "https://shop.example.com/success",
				CancelURL:  "https://shop.example.com/cancel",
			},
		},
		{
			name: "valid request with email",
			req: CheckoutRequest{
				PriceID:       "price_basic",
				CustomerEmail: "owner@example.com",
				SuccessURL:    "https://shop.example.com/success",
				CancelURL:     "https://shop.example.com/cancel",
			},
		},
		{
			name: "missing price",
			req: CheckoutRequest{
				SuccessURL: "https://shop.example.com/success",
				CancelURL:  "https://shop.example.com/cancel",
			},
			wantFields: []string{"priceId"},
		},
		{
			name: "malformed email",
			req: CheckoutRequest{
				PriceID:       "price_basic",
				CustomerEmail: "not-an-email",
				SuccessURL:    "https://shop.example.com/success",
				CancelURL:     "https://shop.example.com/cancel",
			},
			wantFields: []string{"customerEmail"},
		},
		{
			name: "relative urls",
			req: CheckoutRequest{
				PriceID:    "price_basic",
				SuccessURL: "/success",
				CancelURL:  "cancel",
			},
			wantFields: []string{"successUrl", "cancelUrl"},
		},
		{
			name:       "everything missing",
			req:        CheckoutRequest{},
			wantFields: []string{"priceId", "successUrl", "cancelUrl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ElementsMatch(t, tt.wantFields, verrs.Fields())
		})
	}
}

func TestParseEventType(t *testing.T) {
	assert.Equal(t, EventTypeCheckoutCompleted, ParseEventType("checkout.session.completed"))
	assert.Equal(t, EventTypeInvoicePaid, ParseEventType("invoice.payment_succeeded"))
	assert.Equal(t, EventTypeSubscriptionDeleted, ParseEventType("customer.subscription.deleted"))
	assert.Equal(t, EventTypeUnknown, ParseEventType("customer.tax_id.created"))
	assert.Equal(t, EventTypeUnknown, ParseEventType(""))
}

func TestWebhookEventFieldHelpers(t *testing.T) {
	event := WebhookEvent{Object: map[string]interface{}{
		"customer":           "cus_1",
		"amount_paid":        float64(1500),
		"current_period_end": float64(1756684800),
	}}

	assert.Equal(t, "cus_1", event.StringField("customer"))
	assert.Equal(t, "", event.StringField("missing"))
	assert.Equal(t, int64(1500), event.Int64Field("amount_paid"))
	assert.Equal(t, int64(0), event.Int64Field("customer"))
	assert.Equal(t, int64(1756684800), event.TimeField("current_period_end").Unix())
	assert.True(t, event.TimeField("missing").IsZero())
}

func TestMapProviderSubscriptionStatus(t *testing.T) {
	assert.Equal(t, SubscriptionStatusActive, MapProviderSubscriptionStatus("active"))
	assert.Equal(t, SubscriptionStatusActive, MapProviderSubscriptionStatus("trialing"))
	assert.Equal(t, SubscriptionStatusPastDue, MapProviderSubscriptionStatus("past_due"))
	assert.Equal(t, SubscriptionStatusPastDue, MapProviderSubscriptionStatus("unpaid"))
	assert.Equal(t, SubscriptionStatusCanceled, MapProviderSubscriptionStatus("canceled"))
	assert.Equal(t, SubscriptionStatusIncomplete, MapProviderSubscriptionStatus("incomplete"))
	assert.Equal(t, SubscriptionStatusIncomplete, MapProviderSubscriptionStatus("something_new"))
}
