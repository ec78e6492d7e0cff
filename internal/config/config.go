// Package config defines the exchange's process-wide configuration. Config
// is loaded from a YAML file with sensitive fields overridable via WAGER_*
// environment variables, modeled on the market-maker bot's config loader.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, carrying exactly the options
// table of spec.md §6 plus store pool sizing.
type Config struct {
	TakerFeeBps      int64  `mapstructure:"taker_fee_bps"`
	DefaultTickCents int64  `mapstructure:"default_tick_cents"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	DatabaseURL      string `mapstructure:"database_url"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	LogLevel         string `mapstructure:"log_level"`
	MaxPoolConns     int    `mapstructure:"max_pool_conns"`
}

// Load reads config from a YAML file with WAGER_* env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("taker_fee_bps", 100)
	v.SetDefault("default_tick_cents", 1)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 7777)
	v.SetDefault("max_pool_conns", 10)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("WAGER_DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if secret := os.Getenv("WAGER_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges (spec.md §6).
func (c *Config) Validate() error {
	if c.TakerFeeBps < 0 || c.TakerFeeBps > 500 {
		return fmt.Errorf("taker_fee_bps must be in [0,500], got %d", c.TakerFeeBps)
	}
	if c.DefaultTickCents < 1 || c.DefaultTickCents > 10 {
		return fmt.Errorf("default_tick_cents must be in [1,10], got %d", c.DefaultTickCents)
	}
	if c.Port <= 0 {
		return fmt.Errorf("port is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (set WAGER_DATABASE_URL)")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required (set WAGER_JWT_SECRET)")
	}
	return nil
}
