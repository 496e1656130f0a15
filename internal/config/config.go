package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultJWTExpiresIn      = "24h"
	DefaultDatabaseDriver    = "postgres"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "useembed"
	DefaultPGSSLMode         = "disable"
	DefaultRedisAddr         = "127.0.0.1:6379"
	DefaultPrimaryProvider   = "gemini"
	DefaultFallbackProvider  = "openai"
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = "1s"
	DefaultAITimeout         = "60s"
	DefaultHistoryLimit      = 20
	DefaultMaxToolRounds     = 1
	DefaultLockTimeout       = "2m"
	DefaultInvokerTimeout    = "30s"
	DefaultInvokerMaxItems   = 20
	DefaultInvokerMaxWorkers = 8
	DefaultInvokerMaxText    = 16 * 1024
	DefaultCatalogCacheTTL   = "30s"
	DefaultAnalyticsBuffer   = 1024
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 3 * * *"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Admin        AdminConfig        `toml:"admin"`
	Auth         AuthConfig         `toml:"auth"`
	Database     DatabaseConfig     `toml:"database"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Redis        RedisConfig        `toml:"redis"`
	AI           AIConfig           `toml:"ai"`
	Conversation ConversationConfig `toml:"conversation"`
	Invoker      InvokerConfig      `toml:"invoker"`
	Catalog      CatalogConfig      `toml:"catalog"`
	Analytics    AnalyticsConfig    `toml:"analytics"`
	Secrets      SecretsConfig      `toml:"secrets"`
	Websocket    WebsocketConfig    `toml:"websocket"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdminConfig seeds the first dashboard account and its tenant.
type AdminConfig struct {
	Email      string `toml:"email"`
	Password   string `toml:"password"`
	TenantName string `toml:"tenant_name"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders a pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ProviderConfig struct {
	Kind    string `toml:"kind"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	// Temperature is nil when unset so an explicit 0 survives.
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
}

type AIConfig struct {
	Primary    ProviderConfig  `toml:"primary"`
	Fallback   *ProviderConfig `toml:"fallback"`
	MaxRetries int             `toml:"max_retries"`
	RetryDelay string          `toml:"retry_delay"`
	Timeout    string          `toml:"timeout"`
}

type ConversationConfig struct {
	HistoryLimit    int    `toml:"history_limit"`
	MaxToolRounds   int    `toml:"max_tool_rounds"`
	TitleGeneration bool   `toml:"title_generation"`
	LockTimeout     string `toml:"lock_timeout"`
}

type InvokerConfig struct {
	Timeout           string `toml:"timeout"`
	MaxItems          int    `toml:"max_items"`
	MaxConcurrency    int    `toml:"max_concurrency"`
	MaxTextBytes      int    `toml:"max_text_bytes"`
	ValidateArguments bool   `toml:"validate_arguments"`
}

type CatalogConfig struct {
	// CacheTTL of "0" disables catalog caching.
	CacheTTL string `toml:"cache_ttl"`
}

type AnalyticsConfig struct {
	Buffer            int    `toml:"buffer"`
	RetentionDays     int    `toml:"retention_days"`
	RetentionSchedule string `toml:"retention_schedule"`
}

type SecretsConfig struct {
	EncryptionKey string `toml:"encryption_key"`
}

type WebsocketConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Email:      "admin@example.com",
			Password:   "change-your-password-here",
			TenantName: "Default",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Database: DatabaseConfig{
			Driver: DefaultDatabaseDriver,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		AI: AIConfig{
			Primary:    ProviderConfig{Kind: DefaultPrimaryProvider},
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
			Timeout:    DefaultAITimeout,
		},
		Conversation: ConversationConfig{
			HistoryLimit:    DefaultHistoryLimit,
			MaxToolRounds:   DefaultMaxToolRounds,
			TitleGeneration: true,
			LockTimeout:     DefaultLockTimeout,
		},
		Invoker: InvokerConfig{
			Timeout:        DefaultInvokerTimeout,
			MaxItems:       DefaultInvokerMaxItems,
			MaxConcurrency: DefaultInvokerMaxWorkers,
			MaxTextBytes:   DefaultInvokerMaxText,
		},
		Catalog: CatalogConfig{
			CacheTTL: DefaultCatalogCacheTTL,
		},
		Analytics: AnalyticsConfig{
			Buffer:            DefaultAnalyticsBuffer,
			RetentionDays:     DefaultRetentionDays,
			RetentionSchedule: DefaultRetentionSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Duration parses a duration setting, returning fallback when the value is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
