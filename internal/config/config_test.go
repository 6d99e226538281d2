package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.CheckoutTimeout)
	assert.Equal(t, 3, cfg.AddressMinLength)
	assert.Equal(t, 255, cfg.AddressMaxLength)
	assert.Equal(t, uint64(2), cfg.IssuerRetries)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHECKOUT_CURRENCY", "EUR")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REQUEST_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"db port", "DB_PORT", "abc"},
		{"duration", "REQUEST_TIMEOUT", "soon"},
		{"int", "ADDRESS_MAX_LENGTH", "many"},
		{"retries", "ISSUER_RETRIES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoad_AddressBoundsInverted(t *testing.T) {
	t.Setenv("ADDRESS_MIN_LENGTH", "50")
	t.Setenv("ADDRESS_MAX_LENGTH", "10")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_CheckoutTimeoutMustCoverIssuerRetries(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("ISSUER_RETRIES", "2")
	t.Setenv("CHECKOUT_TIMEOUT", "10s")

	_, err := Load()
	assert.ErrorContains(t, err, "CHECKOUT_TIMEOUT")

	t.Setenv("CHECKOUT_TIMEOUT", "15s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.CheckoutTimeout)
}
