package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Order.PaymentTimeout)
	assert.Equal(t, 20, cfg.Order.ListLimit)
	assert.Equal(t, 30, cfg.Entitlement.AppMonthlyDays)
	assert.Equal(t, 365, cfg.Entitlement.AppYearlyDays)
	assert.Equal(t, 5*time.Minute, cfg.Entitlement.CacheTTL)
	assert.Equal(t, "payment-events", cfg.Kafka.PaymentEventTopic)
	assert.Equal(t, "@every 1m", cfg.Sweeper.TimeoutSpec)
	assert.True(t, cfg.Payment.MethodEnabled("alipay"))
	assert.False(t, cfg.Payment.MethodEnabled("paypal"))
}

func TestConfigLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AIHUB_ORDER_PAYMENT_TIMEOUT", "15m")
	t.Setenv("AIHUB_PAYMENT_WECHAT_PAY_ENABLED", "false")
	t.Setenv("DATABASE_URL", "postgresql://u:p@db:5432/shop")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Order.PaymentTimeout)
	assert.False(t, cfg.Payment.MethodEnabled("wechatpay"))
	assert.Equal(t, "postgresql://u:p@db:5432/shop", cfg.Database.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestConfigLoader_ValidationFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AIHUB_SERVER_ENV", "qa")

	_, err := NewConfigLoader().Load()
	assert.Error(t, err)
}

func TestConfigLoader_FileAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("order:\n  list_limit: 50\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	loader := NewConfigLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Order.ListLimit)

	var notified *Config
	loader.RegisterCallback(func(_, newConfig *Config) {
		notified = newConfig
	})
	require.NoError(t, loader.Reload())
	require.NotNil(t, notified)
	assert.Equal(t, 50, notified.Order.ListLimit)
	assert.Equal(t, 50, loader.GetConfig().Order.ListLimit)
}

func TestGlobalConfig(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	require.NoError(t, LoadConfig())
	require.NotNil(t, GetAppConfig())
	assert.Equal(t, "8000", GetAppConfig().Server.Port)
}
