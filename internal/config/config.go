// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type StorageDriver string

const (
	StorageSQLite   StorageDriver = "sqlite"
	StoragePebble   StorageDriver = "pebble"
	StorageSupabase StorageDriver = "supabase"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	StorageDriver StorageDriver `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	StoragePath   string        `env:"STORAGE_PATH" envDefault:"./data/clinic_crm.db"`
	SupabaseURL   string        `env:"SUPABASE_URL"`
	SupabaseKey   string        `env:"SUPABASE_KEY"`

	// Redis is optional. When set it backs the ads cache, the session
	// credentials and cross-instance broadcasts.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"crm:events"`

	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// Ads credentials may be missing; the ads endpoints then answer 503.
	AdsAccessToken    string        `env:"ADS_ACCESS_TOKEN"`
	AdsAccountID      string        `env:"ADS_ACCOUNT_ID"`
	AdsBaseURL        string        `env:"ADS_BASE_URL" envDefault:"https://graph.facebook.com/v19.0"`
	AdsCountryCode    string        `env:"ADS_COUNTRY_CODE" envDefault:"BR"`
	AdsMinDelay       time.Duration `env:"ADS_MIN_DELAY" envDefault:"1s"`
	AdsThrottledDelay time.Duration `env:"ADS_THROTTLED_DELAY" envDefault:"5s"`
	AdsMaxWorkers     int           `env:"ADS_MAX_WORKERS" envDefault:"4"`

	WhatsAppSessionDir     string        `env:"WHATSAPP_SESSION_DIR" envDefault:"./data/whatsapp"`
	WhatsAppReconnectDelay time.Duration `env:"WHATSAPP_RECONNECT_DELAY" envDefault:"5s"`
	WhatsAppAutoConnect    bool          `env:"WHATSAPP_AUTO_CONNECT" envDefault:"false"`
	WhatsAppLogLevel       string        `env:"WHATSAPP_LOG_LEVEL" envDefault:"WARN"`

	// JWTSecret enables the bearer guard on /v1 when set.
	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the server configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageSQLite, StoragePebble:
	case StorageSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("storage driver %q requires SUPABASE_URL and SUPABASE_KEY", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.AdsMinDelay <= 0 {
		return fmt.Errorf("ADS_MIN_DELAY must be positive")
	}
	return nil
}

// Addr is the listen address, ":8080" for PORT=8080.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c *Config) AdsConfigured() bool {
	return c.AdsAccessToken != "" && c.AdsAccountID != ""
}
