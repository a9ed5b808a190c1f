// Package config holds the typed configuration structures shared across
// the application. Loading and defaulting live in infrastructure/config.
package config

import "fmt"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GetAddr returns the listen address in host:port form.
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds relational store configuration.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

// RedisConfig holds cache/stream configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the redis address in host:port form.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	OutputPath string `mapstructure:"output_path"`
	Debug      bool   `mapstructure:"debug"` // source location on all levels
}

// BillingConfig holds billing engine tunables.
type BillingConfig struct {
	DefaultGracePeriodDays int    `mapstructure:"default_grace_period_days"`
	ReconcileBatchSize     int    `mapstructure:"reconcile_batch_size"`
	ReconcileIntervalHours int    `mapstructure:"reconcile_interval_hours"`
	DueScanIntervalMinutes int    `mapstructure:"due_scan_interval_minutes"`
	UsageRetentionDays     int    `mapstructure:"usage_retention_days"`
	Timezone               string `mapstructure:"timezone"`
}

// PaymentConfig holds payment provider client configuration.
type PaymentConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AnalyticsConfig holds usage analytics collaborator configuration.
type AnalyticsConfig struct {
	IngestionToken string `mapstructure:"ingestion_token"`
	StreamKey      string `mapstructure:"stream_key"`
	BufferSize     int    `mapstructure:"buffer_size"`
}

// CredentialConfig holds API credential verification configuration.
type CredentialConfig struct {
	HashSecret      string `mapstructure:"hash_secret"`
	FreshTTLSeconds int    `mapstructure:"fresh_ttl_seconds"`
	StaleTTLSeconds int    `mapstructure:"stale_ttl_seconds"`
}
