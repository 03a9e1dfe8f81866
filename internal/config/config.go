// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server and the terminal browser.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type HTTPConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// StoreConfig picks the backend that holds postings.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Schema string `mapstructure:"schema"`
	Table  string `mapstructure:"table"`
}

type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type EtcdConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Prefix    string        `mapstructure:"prefix"`
}

// RedisConfig is optional; an empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NATSConfig struct {
	URL         string        `mapstructure:"url"`
	Subject     string        `mapstructure:"subject"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type TelegramConfig struct {
	APIBase       string        `mapstructure:"api_base"`
	BotToken      string        `mapstructure:"bot_token"`
	ChatID        string        `mapstructure:"chat_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

type AdminConfig struct {
	Email        string        `mapstructure:"email"`
	PasswordHash string        `mapstructure:"password_hash"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

type ListingConfig struct {
	PageSize       int    `mapstructure:"page_size"`
	ResyncSchedule string `mapstructure:"resync_schedule"`
}

type RelayConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ElectionTTL time.Duration `mapstructure:"election_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var replacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.public_base_url", "http://localhost:8080")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.table", "jobs")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.timeout", "5s")
	v.SetDefault("etcd.prefix", "/jobboard")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "5m")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "jobboard.changes.jobs")
	v.SetDefault("nats.conn_timeout", "5s")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.timeout", "15s")
	v.SetDefault("telegram.rate_per_second", 1.0)

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.session_ttl", "12h")

	v.SetDefault("listing.page_size", 10)
	v.SetDefault("listing.resync_schedule", "")

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.election_ttl", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("tracing.enabled", false)
}

// Load loads configuration from file and environment variables.
// Environment variables use the JOBBOARD_ prefix with dots replaced by
// underscores, e.g. JOBBOARD_POSTGRES_DSN.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOBBOARD")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for store.driver=postgres")
		}
	case "etcd":
		if len(c.Etcd.Endpoints) == 0 {
			return fmt.Errorf("etcd.endpoints is required for store.driver=etcd")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want postgres or etcd)", c.Store.Driver)
	}
	if c.Store.Schema == "" || c.Store.Table == "" {
		return fmt.Errorf("store.schema and store.table must be set")
	}
	if c.Listing.PageSize <= 0 {
		return fmt.Errorf("listing.page_size must be positive, got %d", c.Listing.PageSize)
	}
	if c.Listing.ResyncSchedule != "" {
		if _, err := cron.ParseStandard(c.Listing.ResyncSchedule); err != nil {
			return fmt.Errorf("listing.resync_schedule: %w", err)
		}
	}
	if c.Admin.SessionTTL <= 0 {
		return fmt.Errorf("admin.session_ttl must be positive")
	}
	if c.Relay.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("relay.enabled requires nats.url")
	}
	return nil
}
