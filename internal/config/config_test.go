package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "AUTH_SECRET", "DATABASE_URL", "AUTO_MIGRATE", "REDIS_DB",
		"REPORT_CACHE_TTL_SECONDS", "TIMEZONE", "SETTLEMENT_UPDATE_MODE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Equal(t, "additive", cfg.SettlementUpdateMode)
	assert.Equal(t, time.Minute, cfg.ReportCacheTTL())
	assert.Equal(t, ":8080", cfg.Address())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "vendormall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
timezone: America/Chicago
settlement_update_mode: corrective
report_cache_ttl_seconds: 5
auto_migrate: true
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "corrective", cfg.SettlementUpdateMode)
	assert.Equal(t, time.Duration(0), cfg.ReportCacheTTL())
	assert.True(t, cfg.AutoMigrate)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidNumbersKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_DB", "-3")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(Config{LogLevel: "debug", LogFormat: "text"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = NewLogger(Config{LogLevel: "loud"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
