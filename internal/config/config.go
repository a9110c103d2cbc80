package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Provider    ProviderConfig  `mapstructure:"provider"`
	Ingestion   IngestionConfig `mapstructure:"ingestion"`
	API         APIConfig       `mapstructure:"api"`
	Security    SecurityConfig  `mapstructure:"security"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProviderConfig describes the upstream market data API.
type ProviderConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key" json:"-" yaml:"-"`
	VsCurrency string `mapstructure:"vs_currency"`
	Timeout    string `mapstructure:"timeout"`

	// RequestsPerMinute paces outgoing calls; zero disables pacing.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// IngestionConfig holds the knobs of the scheduled ingestion job.
type IngestionConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	RunOnStart           bool   `mapstructure:"run_on_start"`
	Interval             string `mapstructure:"interval"`
	Retries              int    `mapstructure:"retries"`
	BaseDelay            string `mapstructure:"base_delay"`
	LookbackDays         int    `mapstructure:"lookback_days"`
	UniverseSize         int    `mapstructure:"universe_size"`
	BatchSize            int    `mapstructure:"batch_size"`
	BatchDelay           string `mapstructure:"batch_delay"`
	StaggerDelay         string `mapstructure:"stagger_delay"`
	CacheTTL             string `mapstructure:"cache_ttl"`
	RetryPermanentErrors bool   `mapstructure:"retry_permanent_errors"`
}

// APIConfig configures the read side.
type APIConfig struct {
	ListCacheTTL  string `mapstructure:"list_cache_ttl"`
	ChartCacheTTL string `mapstructure:"chart_cache_ttl"`
	DefaultLimit  int    `mapstructure:"default_limit"`
	MaxLimit      int    `mapstructure:"max_limit"`
	HistoryLimit  int    `mapstructure:"history_limit"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	// APIKey is accepted in the x-api-key header as an alternative to a bearer token.
	APIKey string `mapstructure:"api_key" json:"-" yaml:"-"`
}

type RateLimitConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Window   string `mapstructure:"window"`
	Requests int    `mapstructure:"requests"`
}

type LoggingConfig struct {
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets commonly arrive under their conventional names
	bindings := map[string]string{
		"security.jwt_secret":   "JWT_SECRET",
		"security.api_key":      "API_KEY",
		"database.database_url": "DATABASE_URL",
		"provider.api_key":      "COINGECKO_API_KEY",
		"telegram.bot_token":    "TELEGRAM_BOT_TOKEN",
		"server.port":           "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// MaxIngestionRetries bounds the per-run attempt budget.
const MaxIngestionRetries = 10

// Validate checks the values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Environment != "test" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	durations := map[string]string{
		"provider.timeout":           c.Provider.Timeout,
		"ingestion.interval":         c.Ingestion.Interval,
		"ingestion.base_delay":       c.Ingestion.BaseDelay,
		"ingestion.batch_delay":      c.Ingestion.BatchDelay,
		"ingestion.stagger_delay":    c.Ingestion.StaggerDelay,
		"ingestion.cache_ttl":        c.Ingestion.CacheTTL,
		"api.list_cache_ttl":         c.API.ListCacheTTL,
		"api.chart_cache_ttl":        c.API.ChartCacheTTL,
		"rate_limit.window":          c.RateLimit.Window,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", key, err)
		}
	}

	if c.Ingestion.Retries < 1 || c.Ingestion.Retries > MaxIngestionRetries {
		return fmt.Errorf("ingestion.retries must be between 1 and %d, got %d", MaxIngestionRetries, c.Ingestion.Retries)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("ingestion.batch_size must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.UniverseSize < 1 {
		return fmt.Errorf("ingestion.universe_size must be positive, got %d", c.Ingestion.UniverseSize)
	}
	if c.Ingestion.LookbackDays < 1 {
		return fmt.Errorf("ingestion.lookback_days must be positive, got %d", c.Ingestion.LookbackDays)
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Duration parses a validated duration string, falling back when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"https://crypto-front-8l8t.onrender.com"})

	// Set database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "cryptopulse")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Provider
	v.SetDefault("provider.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.vs_currency", "usd")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.requests_per_minute", 0)

	// Ingestion
	v.SetDefault("ingestion.enabled", true)
	v.SetDefault("ingestion.run_on_start", false)
	v.SetDefault("ingestion.interval", "30m")
	v.SetDefault("ingestion.retries", 3)
	v.SetDefault("ingestion.base_delay", "60s")
	v.SetDefault("ingestion.lookback_days", 3)
	v.SetDefault("ingestion.universe_size", 10)
	v.SetDefault("ingestion.batch_size", 5)
	v.SetDefault("ingestion.batch_delay", "5m")
	v.SetDefault("ingestion.stagger_delay", "2s")
	v.SetDefault("ingestion.cache_ttl", "30m")
	v.SetDefault("ingestion.retry_permanent_errors", true)

	// Read API
	v.SetDefault("api.list_cache_ttl", "30m")
	v.SetDefault("api.chart_cache_ttl", "30m")
	v.SetDefault("api.default_limit", 10)
	v.SetDefault("api.max_limit", 100)
	v.SetDefault("api.history_limit", 60)

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.api_key", "")

	// Rate limiting
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", "15m")
	v.SetDefault("rate_limit.requests", 100)

	// Logging
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "cryptopulse")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
}
