package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, 30*time.Second, cfg.LPLockTTL)
	require.Equal(t, 7, cfg.ExpiryWarningDays)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNegativeWarningWindow(t *testing.T) {
	t.Setenv("EXPIRY_WARNING_DAYS", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	var nilCfg *Config
	require.False(t, nilCfg.IsProduction())
	require.True(t, (&Config{AppEnv: "production"}).IsProduction())
}
