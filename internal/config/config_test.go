package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
server:
  port: ":9000"
jwt:
  secret: "${INTERRUPTD_JWT}"
tracking:
  year: 2025
insight:
  provider: gemini
  cache_ttl: 1h
`), 0o600))

	t.Setenv("CONFIG_ENV", "local")
	t.Setenv("INTERRUPTD_JWT", "s3cret")
	t.Setenv("TRACKING_TIMEZONE", "Europe/Berlin")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 2025, cfg.Tracking.Year)
	assert.Equal(t, 364, cfg.Tracking.MaxOrdinal)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, time.Hour, cfg.Insight.CacheTTL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.Insight.Provider = "openai"
	assert.Error(t, cfg.Validate())

	cfg.Insight.Provider = "none"
	cfg.Tracking.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestUnresolvedPlaceholders(t *testing.T) {
	cfg := &Config{}
	cfg.JWT.Secret = "${JWT_SECRET}"
	cfg.Insight.APIKey = "${INSIGHT_API_KEY}"
	cfg.Billing.WebhookSecret = "whsec_${SUFFIX}"
	cfg.applyDefaults()

	assert.Empty(t, cfg.Insight.APIKey)
	assert.Empty(t, cfg.Billing.WebhookSecret)
	assert.Error(t, cfg.Validate())
}
