package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"goalline-alerts/internal/logging"
)

// Feed sources.
const (
	SourceHKJC    = "hkjc"
	SourceListing = "listing"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Bot       BotConfig       `mapstructure:"bot"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	// DryRun keeps history in memory and logs notifications instead of
	// sending them.
	DryRun bool `mapstructure:"dry_run"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs polling and backfill cadence.
type SchedulerConfig struct {
	EvaluateInterval time.Duration `mapstructure:"evaluate_interval"`
	BackfillInterval time.Duration `mapstructure:"backfill_interval"`
	AlignToInterval  bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey  int64         `mapstructure:"advisory_lock_key"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
}

// FeedConfig selects the live feed and tunes its HTTP clients.
type FeedConfig struct {
	Source  string        `mapstructure:"source"`
	HKJC    HKJCConfig    `mapstructure:"hkjc"`
	Listing ListingConfig `mapstructure:"listing"`
}

// HKJCConfig covers the JSON results and odds endpoints.
type HKJCConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// ListingConfig covers the HTML match listing.
type ListingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
}

// PipelineConfig tunes live evaluation.
type PipelineConfig struct {
	Workers             int             `mapstructure:"workers"`
	TriggerLow          decimal.Decimal `mapstructure:"trigger_low"`
	TriggerHigh         decimal.Decimal `mapstructure:"trigger_high"`
	TrackedLine         string          `mapstructure:"tracked_line"`
	CooldownCapacity    int             `mapstructure:"cooldown_capacity"`
	LastMinutesCapacity int             `mapstructure:"last_minutes_capacity"`
	HTLastMinutes       int             `mapstructure:"ht_last_minutes"`
	FTLastMinutes       int             `mapstructure:"ft_last_minutes"`
}

// EstimatorConfig tunes the history search.
type EstimatorConfig struct {
	MinSamples            int `mapstructure:"min_samples"`
	SuccessGoals          int `mapstructure:"success_goals"`
	MultiGoals            int `mapstructure:"multi_goals"`
	MaxMinuteTolerance    int `mapstructure:"max_minute_tolerance"`
	ReliabilityDays       int `mapstructure:"reliability_days"`
	MinReliabilitySamples int `mapstructure:"min_reliability_samples"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled               bool           `mapstructure:"enabled"`
	NotificationRetention time.Duration  `mapstructure:"notification_retention"`
	Telegram              TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BotConfig enables the interactive report bot.
type BotConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Token        string  `mapstructure:"token"`
	AllowedChats []int64 `mapstructure:"allowed_chats"`
	PollTimeout  int     `mapstructure:"poll_timeout"`
	Debug        bool    `mapstructure:"debug"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	TrendDays     int `mapstructure:"trend_days"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOALLINEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goallinewatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.dry_run", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.evaluate_interval", "60s")
	v.SetDefault("scheduler.backfill_interval", "30m")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x676f616c))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("feed.source", SourceHKJC)
	v.SetDefault("feed.hkjc.base_url", "https://bet.hkjc.com/football/getJSON.aspx")
	v.SetDefault("feed.hkjc.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	v.SetDefault("feed.hkjc.request_timeout", "10s")
	v.SetDefault("feed.hkjc.rate_limit", 8.0)
	v.SetDefault("feed.hkjc.burst", 16)
	v.SetDefault("feed.hkjc.retry_attempts", 20)
	v.SetDefault("feed.hkjc.retry_backoff", "250ms")
	v.SetDefault("feed.listing.base_url", "http://g10oal.com")
	v.SetDefault("feed.listing.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	v.SetDefault("feed.listing.request_timeout", "15s")
	v.SetDefault("feed.listing.rate_limit", 4.0)
	v.SetDefault("feed.listing.burst", 4)

	v.SetDefault("pipeline.workers", 16)
	v.SetDefault("pipeline.trigger_low", "2.0")
	v.SetDefault("pipeline.trigger_high", "2.15")
	v.SetDefault("pipeline.tracked_line", "0.5/1.0")
	v.SetDefault("pipeline.cooldown_capacity", 50)
	v.SetDefault("pipeline.last_minutes_capacity", 5)
	v.SetDefault("pipeline.ht_last_minutes", 41)
	v.SetDefault("pipeline.ft_last_minutes", 86)

	v.SetDefault("estimator.min_samples", 10)
	v.SetDefault("estimator.success_goals", 1)
	v.SetDefault("estimator.multi_goals", 2)
	v.SetDefault("estimator.max_minute_tolerance", 2)
	v.SetDefault("estimator.reliability_days", 3)
	v.SetDefault("estimator.min_reliability_samples", 4)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.notification_retention", "720h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("bot.enabled", false)
	v.SetDefault("bot.poll_timeout", 60)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.trend_days", 14)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc parses prices from strings or numbers so band edges
// keep their exact decimal value.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.EvaluateInterval <= 0 {
		return fmt.Errorf("scheduler.evaluate_interval must be greater than zero")
	}
	if c.Scheduler.BackfillInterval <= 0 {
		return fmt.Errorf("scheduler.backfill_interval must be greater than zero")
	}
	switch c.Feed.Source {
	case SourceHKJC, SourceListing:
	default:
		return fmt.Errorf("feed.source must be %q or %q, got %q", SourceHKJC, SourceListing, c.Feed.Source)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be greater than zero")
	}
	if c.Pipeline.TriggerLow.GreaterThan(c.Pipeline.TriggerHigh) {
		return fmt.Errorf("pipeline.trigger_low (%s) exceeds pipeline.trigger_high (%s)", c.Pipeline.TriggerLow, c.Pipeline.TriggerHigh)
	}
	if c.Pipeline.CooldownCapacity <= 0 || c.Pipeline.LastMinutesCapacity <= 0 {
		return fmt.Errorf("pipeline ledger capacities must be greater than zero")
	}
	if c.Estimator.MinSamples <= 0 {
		return fmt.Errorf("estimator.min_samples must be greater than zero")
	}
	if c.Estimator.MaxMinuteTolerance < 0 {
		return fmt.Errorf("estimator.max_minute_tolerance cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Bot.Enabled && c.Bot.Token == "" {
		return fmt.Errorf("bot.token 必须配置")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
