package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("AUTH_TOKENS", "")
	t.Setenv("AUTH_TOKEN", "")

	cfg := LoadConfig()

	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, 48.0, cfg.RateLimit.RatePerMinute)
	assert.Equal(t, 0.01, cfg.RateLimit.FactorIncrement)
	assert.Equal(t, 0.01, cfg.RateLimit.FactorDecrement)
	assert.Equal(t, 1.0, cfg.RateLimit.MinViolationFactor)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.MaxEffectiveInterval)
	assert.Empty(t, cfg.Auth.Tokens)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("RATE_LIMIT_MAX_INTERVAL", "30s")
	t.Setenv("AUTH_TOKENS", "a, b,,c")
	t.Setenv("AUTH_TOKEN", "d")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := LoadConfig()

	assert.Equal(t, ":9090", cfg.GetServerAddress())
	assert.Equal(t, StoreBackendRedis, cfg.Store.Backend)
	assert.Equal(t, 60.0, cfg.RateLimit.RatePerMinute)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.MaxEffectiveInterval)
	assert.Equal(t, []string{"a", "b", "c", "d"}, cfg.Auth.Tokens)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("STORE_BACKEND", "")
		return LoadConfig()
	}

	cfg := base()
	cfg.Store.Backend = StoreBackendRedis
	cfg.Redis.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "REDIS_URL")

	cfg = base()
	cfg.Store.Backend = "etcd"
	assert.ErrorContains(t, cfg.Validate(), "unknown STORE_BACKEND")

	cfg = base()
	cfg.RateLimit.RatePerMinute = 0
	assert.ErrorContains(t, cfg.Validate(), "RATE_LIMIT_PER_MINUTE")

	cfg = base()
	cfg.RateLimit.MinViolationFactor = 0.5
	assert.ErrorContains(t, cfg.Validate(), "RATE_LIMIT_MIN_FACTOR")

	cfg = base()
	cfg.Server.EnableTLS = true
	assert.NoError(t, cfg.Validate(), "development falls back to a self-signed certificate")
	cfg.Environment = "production"
	assert.ErrorContains(t, cfg.Validate(), "TLS_CERT_FILE")

	cfg = base()
	cfg.Ingress.Enabled = true
	cfg.Ingress.Burst = 0
	assert.ErrorContains(t, cfg.Validate(), "INGRESS_RATE")
}
