package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/premium-engine/config"
)

func TestLoad_Defaults(t *testing.T) {

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
logging:
  level: debug
commission:
  rate_digits: 6
`), 0o600))
	t.Setenv("PREMIUM_DATABASE_PATH", "/tmp/other.db")
	t.Setenv("PREMIUM_SCHEDULER_ENABLED", "false")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int32(6), cfg.Commission.RateDigits)
	assert.Equal(t, int32(8), cfg.Commission.AmountDigits)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PREMIUM_LOGGING_LEVEL", "verbose")

	_, err := config.Load("")

	assert.ErrorContains(t, err, "invalid configuration")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestLoad_ZeroCurrencyDigits(t *testing.T) {
	t.Setenv("PREMIUM_PRICING_CURRENCY_DIGITS", "0")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, int32(0), cfg.Pricing.CurrencyDigits)
}
