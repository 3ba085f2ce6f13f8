// Package config loads runtime settings from defaults, an optional YAML file
// and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fleetops/internal/logging"
	"fleetops/internal/query"
)

// EnvPrefix prefixes the generic FLEETOPS_<SECTION>_<KEY> variables.
const EnvPrefix = "FLEETOPS"

type Config struct {
	HTTP         HTTPConfig         `mapstructure:"http"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Paging       PagingConfig       `mapstructure:"paging"`
	RetailPoints RetailPointsConfig `mapstructure:"retail_points"`
	Log          LogConfig          `mapstructure:"log"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Rate         RateConfig         `mapstructure:"rate"`
	Seed         SeedConfig         `mapstructure:"seed"`
	Webhooks     WebhooksConfig     `mapstructure:"webhooks"`
}

type HTTPConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the store: an empty URL means in-memory.
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig enables cross-instance event fan-out when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PagingConfig struct {
	DefaultPage int `mapstructure:"default_page"`
	DefaultSize int `mapstructure:"default_size"`
	MaxPage     int `mapstructure:"max_page"`
	MaxSize     int `mapstructure:"max_size"`
}

type RetailPointsConfig struct {
	MaxNearestLimit int `mapstructure:"max_nearest_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateConfig is the per-client token bucket; RPS 0 disables limiting.
type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type SeedConfig struct {
	File string `mapstructure:"file"`
}

// WebhooksConfig forwards change events to URLs, signed with Secret when set.
type WebhooksConfig struct {
	URLs        []string      `mapstructure:"urls"`
	Secret      string        `mapstructure:"secret"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	pages := query.DefaultPageConfig()
	return Config{
		HTTP:     HTTPConfig{Port: 8080, ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 15 * time.Second},
		Database: DatabaseConfig{Migrate: true},
		Paging: PagingConfig{
			DefaultPage: pages.DefaultPage,
			DefaultSize: pages.DefaultSize,
			MaxPage:     pages.MaxPage,
			MaxSize:     pages.MaxSize,
		},
		RetailPoints: RetailPointsConfig{MaxNearestLimit: 1000},
		Log:          LogConfig{Level: "info", Format: "json"},
		CORS:         CORSConfig{AllowedOrigins: []string{"*"}},
		Rate:         RateConfig{RPS: 0, Burst: 0},
		Webhooks:     WebhooksConfig{MaxAttempts: 10, Timeout: 5 * time.Second},
	}
}

// Load reads file (optional) and the environment over the defaults.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Webhooks.URLs = splitList(cfg.Webhooks.URLs)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_header_timeout", d.HTTP.ReadHeaderTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.migrate", d.Database.Migrate)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("paging.default_page", d.Paging.DefaultPage)
	v.SetDefault("paging.default_size", d.Paging.DefaultSize)
	v.SetDefault("paging.max_page", d.Paging.MaxPage)
	v.SetDefault("paging.max_size", d.Paging.MaxSize)
	v.SetDefault("retail_points.max_nearest_limit", d.RetailPoints.MaxNearestLimit)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("rate.rps", d.Rate.RPS)
	v.SetDefault("rate.burst", d.Rate.Burst)
	v.SetDefault("seed.file", d.Seed.File)
	v.SetDefault("webhooks.urls", d.Webhooks.URLs)
	v.SetDefault("webhooks.secret", d.Webhooks.Secret)
	v.SetDefault("webhooks.max_attempts", d.Webhooks.MaxAttempts)
	v.SetDefault("webhooks.timeout", d.Webhooks.Timeout)
}

// bindEnv adds the short deployment names next to the FLEETOPS_ ones. The
// prefixed name is listed first and wins when both are set.
func bindEnv(v *viper.Viper) {
	short := map[string]string{
		"http.port":             "PORT",
		"database.url":          "DATABASE_URL",
		"database.migrate":      "DB_MIGRATE",
		"redis.url":             "REDIS_URL",
		"log.level":             "LOG_LEVEL",
		"log.format":            "LOG_FORMAT",
		"cors.allowed_origins":  "ALLOW_ORIGINS",
		"rate.rps":              "RATE_RPS",
		"rate.burst":            "RATE_BURST",
		"webhooks.urls":         "WEBHOOK_URLS",
		"webhooks.secret":       "WEBHOOK_SECRET",
		"webhooks.max_attempts": "WEBHOOK_MAX_ATTEMPTS",
	}
	for key, env := range short {
		_ = v.BindEnv(key, prefixed(key), env)
	}
}

func prefixed(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be in 1..65535, got %d", c.HTTP.Port))
	}
	if c.Paging.DefaultSize <= 0 || c.Paging.MaxSize <= 0 || c.Paging.DefaultSize > c.Paging.MaxSize {
		errs = append(errs, fmt.Errorf("paging sizes must satisfy 0 < default_size <= max_size"))
	}
	if c.Paging.DefaultPage < 0 || c.Paging.MaxPage < c.Paging.DefaultPage {
		errs = append(errs, fmt.Errorf("paging pages must satisfy 0 <= default_page <= max_page"))
	}
	if c.RetailPoints.MaxNearestLimit <= 0 {
		errs = append(errs, fmt.Errorf("retail_points.max_nearest_limit must be positive"))
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate.rps and rate.burst must not be negative"))
	}
	if len(c.Webhooks.URLs) > 0 && (c.Webhooks.MaxAttempts <= 0 || c.Webhooks.Timeout <= 0) {
		errs = append(errs, fmt.Errorf("webhooks.max_attempts and webhooks.timeout must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PageConfig converts the paging section.
func (c Config) PageConfig() query.PageConfig {
	return query.PageConfig{
		DefaultPage: c.Paging.DefaultPage,
		DefaultSize: c.Paging.DefaultSize,
		MaxPage:     c.Paging.MaxPage,
		MaxSize:     c.Paging.MaxSize,
	}
}

// Logging converts the log section.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// Summary lists the settings safe to expose on debug endpoints.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"httpPort":        c.HTTP.Port,
		"hasDatabaseUrl":  c.Database.URL != "",
		"hasRedisUrl":     c.Redis.URL != "",
		"allowedOrigins":  c.CORS.AllowedOrigins,
		"rateRps":         c.Rate.RPS,
		"rateBurst":       c.Rate.Burst,
		"maxNearestLimit": c.RetailPoints.MaxNearestLimit,
		"logLevel":        c.Log.Level,
		"webhookTargets":  len(c.Webhooks.URLs),
	}
}
