package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAll(t *testing.T) {
	t.Setenv("DB_STRING", "postgres://localhost/esim")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("VENDOR_BASE_URL", "https://vendor.example.com")
	t.Setenv("VENDOR_PHONE", "100200300")
	t.Setenv("VENDOR_PASSWORD", "pass")
	t.Setenv("VENDOR_SIGN_SECRET", "sign-secret")
	t.Setenv("WEBHOOK_HMAC_SECRET", "hmac-secret")
	t.Setenv("ENCRYPTION_KEY", "enc-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setAll(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTP_PORT)
	assert.Equal(t, "esim-provisioning", cfg.KAFKA_TOPIC)
	assert.Equal(t, "esim-fulfillment", cfg.KAFKA_GROUP_ID)
	assert.Equal(t, 4, cfg.WORKER_CONCURRENCY)
	assert.Equal(t, 5, cfg.WORKER_MAX_ATTEMPTS)
}

// Старт без секретов — это ошибка конфигурации, а не сюрприз на первом заказе.
func TestLoadConfigMissingSecret(t *testing.T) {
	setAll(t)
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestLoadConfigOverrides(t *testing.T) {
	setAll(t)
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("KAFKA_TOPIC", "esim-jobs")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WORKER_CONCURRENCY)
	assert.Equal(t, "esim-jobs", cfg.KAFKA_TOPIC)
}
