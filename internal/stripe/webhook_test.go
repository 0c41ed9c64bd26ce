package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

func newTestLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

// signPayload строит заголовок Stripe-Signature так же, как его строит провайдер
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEventPayload(eventID string, created time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "active",
				"current_period_end": %d
			}
		}
	}`, eventID, created.Unix(), created.Add(30*24*time.Hour).Unix()))
}

func TestParseEventValidSignature(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())
	created := time.Now().UTC().Truncate(time.Second)
	payload := subscriptionEventPayload("evt_1", created)

	event, err := parser.ParseEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, domain.EventTypeSubscriptionUpdated, event.Type)
	assert.Equal(t, "customer.subscription.updated", event.RawType)
	assert.True(t, created.Equal(event.Created))
	assert.Equal(t, "sub_1", event.StringField("id"))
	assert.Equal(t, "cus_1", event.StringField("customer"))
	assert.Equal(t, "active", event.StringField("status"))
	assert.Equal(t, payload, event.RawPayload)
}

func TestParseEventInvalidSignature(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())
	payload := subscriptionEventPayload("evt_1", time.Now())

	_, err := parser.ParseEvent(payload, signPayload(payload, "whsec_wrong_secret", time.Now()))
	require.Error(t, err)

	var sigErr *domain.SignatureError
	assert.ErrorAs(t, err, &sigErr)
	assert.ErrorIs(t, err, domain.ErrWebhookValidationFailed)
}

func TestParseEventTamperedPayload(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())
	payload := subscriptionEventPayload("evt_1", time.Now())
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	_, err := parser.ParseEvent(tampered, header)
	var sigErr *domain.SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParseEventMissingHeader(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())
	payload := subscriptionEventPayload("evt_1", time.Now())

	_, err := parser.ParseEvent(payload, "")
	var sigErr *domain.SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParseEventEmptyBody(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())

	_, err := parser.ParseEvent(nil, "t=1,v1=deadbeef")
	var sigErr *domain.SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParseEventUnknownType(t *testing.T) {
	parser := NewWebhookParser(testWebhookSecret, newTestLogger())
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_unknown",
		"object": "event",
		"type": "customer.tax_id.created",
		"created": %d,
		"data": {"object": {"id": "txi_1"}}
	}`, time.Now().Unix()))

	event, err := parser.ParseEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, domain.EventTypeUnknown, event.Type)
	assert.Equal(t, "customer.tax_id.created", event.RawType)
}
