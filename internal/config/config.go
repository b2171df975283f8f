// Package config loads settings from defaults, an optional YAML file and
// MLS_-prefixed environment variables, in that precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Provider struct {
	Name         string `koanf:"name" validate:"required"`
	Environment  string `koanf:"environment" validate:"oneof=production sandbox"`
	LoginURL     string `koanf:"login_url" validate:"required,url"`
	BaseURL      string `koanf:"base_url" validate:"required,url"`
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`

	Timeout time.Duration `koanf:"timeout"`
}

type RateLimit struct {
	PerMinute int `koanf:"per_minute" validate:"gte=1,lte=10000"`
	PerHour   int `koanf:"per_hour" validate:"gte=0"`
	PerDay    int `koanf:"per_day" validate:"gte=0"`
}

type Cache struct {
	// TTLs in seconds, bounded so misconfiguration cannot disable caching
	// entirely or pin entries for days.
	ActiveTTL   int    `koanf:"active_ttl" validate:"gte=60,lte=86400"`
	PendingTTL  int    `koanf:"pending_ttl" validate:"gte=60,lte=86400"`
	TerminalTTL int    `koanf:"terminal_ttl" validate:"gte=60,lte=604800"`
	SearchTTL   int    `koanf:"search_ttl" validate:"gte=30,lte=3600"`
	NegativeTTL int    `koanf:"negative_ttl" validate:"gte=10,lte=3600"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db" validate:"gte=0"`
	RedisPass   string `koanf:"redis_pass"`

	SweepEvery time.Duration `koanf:"sweep_every"`
}

type Executor struct {
	MaxRetries int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	Breaker    bool          `koanf:"breaker"`
}

type Sync struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval"`
	PageDelay time.Duration `koanf:"page_delay"`
	BatchSize int           `koanf:"batch_size" validate:"gte=1,lte=1000"`
}

type HTTP struct {
	Addr          string `koanf:"addr" validate:"required"`
	RatePerMinute int    `koanf:"rate_per_minute" validate:"gte=1"`
}

type Geocoder struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

type Config struct {
	Provider  Provider  `koanf:"provider"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Cache     Cache     `koanf:"cache"`
	Executor  Executor  `koanf:"executor"`
	Sync      Sync      `koanf:"sync"`
	HTTP      HTTP      `koanf:"http"`
	Geocoder  Geocoder  `koanf:"geocoder"`
	Log       Log       `koanf:"log"`

	PostgresDSN string   `koanf:"postgres_dsn"`
	ZipPrefixes []string `koanf:"zip_prefixes"`
}

func defaults() Config {
	return Config{
		Provider: Provider{
			Name:        "reso",
			Environment: "production",
			Timeout:     30 * time.Second,
		},
		RateLimit: RateLimit{PerMinute: 60},
		Cache: Cache{
			ActiveTTL:   300,
			PendingTTL:  1800,
			TerminalTTL: 72000,
			SearchTTL:   120,
			NegativeTTL: 60,
			SweepEvery:  5 * time.Minute,
		},
		Executor: Executor{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
			Breaker:    true,
		},
		Sync: Sync{
			Enabled:   true,
			Interval:  15 * time.Minute,
			PageDelay: 500 * time.Millisecond,
			BatchSize: 100,
		},
		HTTP: HTTP{
			Addr:          ":8080",
			RatePerMinute: 120,
		},
		Log: Log{Level: "info"},
	}
}

// Load layers defaults, then the YAML file at path (if non-empty), then
// MLS_-prefixed environment variables (MLS_PROVIDER__CLIENT_ID maps to
// provider.client_id).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("MLS_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MLS_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
