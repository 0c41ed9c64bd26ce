package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(".env")
	require.NoError(t, err)

	assert.Equal(t, "4242", cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "http://localhost:3000", cfg.App.AllowedOrigin)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("CLIENT_DOMAIN", "https://shop.example.com")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_from_env")

	cfg, err := LoadConfig(".env")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "https://shop.example.com", cfg.App.AllowedOrigin)
	assert.Equal(t, "whsec_from_env", cfg.Stripe.WebhookSecret)
}
