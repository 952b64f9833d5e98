// Package config loads runtime settings from .env files, an optional
// config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	PageSpeed PageSpeedConfig `mapstructure:"pagespeed"`
	AIO       AIOConfig       `mapstructure:"aio"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Stats     StatsConfig     `mapstructure:"stats"`
}

type ServerConfig struct {
	Port      int     `mapstructure:"port"`
	GinMode   string  `mapstructure:"gin_mode"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// PageSpeedConfig configures the performance/SEO insight provider. APIKey
// is the deployment-wide fallback credential; per-user keys win over it.
type PageSpeedConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PayloadTTL time.Duration `mapstructure:"payload_ttl"`
}

type AIOConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects the second cache tier: "memory", "file" or "sqlite".
type CacheConfig struct {
	ResultTTL       time.Duration `mapstructure:"result_ttl"`
	Tier2           string        `mapstructure:"tier2"`
	Path            string        `mapstructure:"path"`
	MaxEntries      int           `mapstructure:"max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type BatchConfig struct {
	Size int `mapstructure:"size"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StatsConfig locates the monthly counters. RetainMonths of 0 keeps every month.
type StatsConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	RetainMonths int    `mapstructure:"retain_months"`
}

// Load reads .env.development (or .env), then configPath or ./config.yaml
// when present, then INSIGHTS_* and the well-known provider variables.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	if err := godotenv.Load(".env.development"); err != nil {
		_ = godotenv.Load()
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 5)

	v.SetDefault("pagespeed.endpoint", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed")
	v.SetDefault("pagespeed.api_key", "")
	v.SetDefault("pagespeed.timeout", "30s")
	v.SetDefault("pagespeed.payload_ttl", "30m")

	v.SetDefault("aio.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("aio.api_key", "")
	v.SetDefault("aio.model", "gpt-4o-mini")
	v.SetDefault("aio.timeout", "30s")

	v.SetDefault("cache.result_ttl", "24h")
	v.SetDefault("cache.tier2", "memory")
	v.SetDefault("cache.path", "./data")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("batch.size", 3)

	v.SetDefault("database.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("stats.data_dir", "./data")
	v.SetDefault("stats.retain_months", 12)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("pagespeed.api_key", "INSIGHTS_PAGESPEED_API_KEY", "PAGESPEED_API_KEY")
	_ = v.BindEnv("aio.api_key", "INSIGHTS_AIO_API_KEY", "AIO_API_KEY")
	_ = v.BindEnv("database.url", "INSIGHTS_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("server.port", "INSIGHTS_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.gin_mode", "INSIGHTS_SERVER_GIN_MODE", "GIN_MODE")
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive")
	}
	if c.PageSpeed.Timeout <= 0 || c.AIO.Timeout <= 0 {
		return fmt.Errorf("provider timeouts must be positive")
	}
	if c.Cache.ResultTTL <= 0 || c.PageSpeed.PayloadTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	switch c.Cache.Tier2 {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("cache.tier2 must be memory, file or sqlite, got %q", c.Cache.Tier2)
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be positive")
	}
	if c.Stats.RetainMonths < 0 {
		return fmt.Errorf("stats.retain_months must not be negative")
	}
	return nil
}
