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

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, StorageSQLite, cfg.StorageDriver)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.Second, cfg.AdsMinDelay)
	assert.Equal(t, 5*time.Second, cfg.AdsThrottledDelay)
	assert.Equal(t, "BR", cfg.AdsCountryCode)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("STORAGE_DRIVER", "pebble")
	t.Setenv("ADS_ACCESS_TOKEN", "token")
	t.Setenv("ADS_ACCOUNT_ID", "123")
	t.Setenv("ADS_MIN_DELAY", "250ms")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, StoragePebble, cfg.StorageDriver)
	assert.True(t, cfg.AdsConfigured())
	assert.Equal(t, 250*time.Millisecond, cfg.AdsMinDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORAGE_DRIVER", "supabase")
	_, err = Load()
	assert.ErrorContains(t, err, "SUPABASE_URL")

	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("CACHE_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "parse env")
}
