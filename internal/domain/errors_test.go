package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureErrorUnwraps(t *testing.T) {
	cause := errors.New("bad hmac")
	err := NewSignatureError(cause)

	assert.ErrorIs(t, err, ErrWebhookValidationFailed)
	assert.ErrorIs(t, err, cause)
}

func TestUpstreamErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewUpstreamError("stripe", "api_error", "stripe is down", 503, cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "stripe")
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPersistenceError("apply_subscription_change", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
}

func TestValidationErrorsAccumulate(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())

	errs.Add("priceId", "is required")
	errs.Add("successUrl", "must be an absolute URL")

	assert.True(t, errs.HasErrors())
	assert.ErrorIs(t, errs, ErrInvalidInput)
	assert.Equal(t, []string{"priceId", "successUrl"}, errs.Fields())
}
