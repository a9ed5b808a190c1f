package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/meterline/meterline/internal/shared/config"
)

type Config struct {
	Server     sharedConfig.ServerConfig     `mapstructure:"server"`
	Database   sharedConfig.DatabaseConfig   `mapstructure:"database"`
	Logger     sharedConfig.LoggerConfig     `mapstructure:"logger"`
	Redis      sharedConfig.RedisConfig      `mapstructure:"redis"`
	Billing    sharedConfig.BillingConfig    `mapstructure:"billing"`
	Payment    sharedConfig.PaymentConfig    `mapstructure:"payment"`
	Analytics  sharedConfig.AnalyticsConfig  `mapstructure:"analytics"`
	Credential sharedConfig.CredentialConfig `mapstructure:"credential"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("METERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func validate(c *Config) error {
	if c.Credential.HashSecret == "" {
		return fmt.Errorf("credential.hash_secret is required")
	}
	if c.Credential.StaleTTLSeconds < c.Credential.FreshTTLSeconds {
		return fmt.Errorf("credential.stale_ttl_seconds must be at least fresh_ttl_seconds")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "meterline_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Billing defaults
	viper.SetDefault("billing.default_grace_period_days", 3)
	viper.SetDefault("billing.reconcile_batch_size", 1000)
	viper.SetDefault("billing.reconcile_interval_hours", 12)
	viper.SetDefault("billing.due_scan_interval_minutes", 15)
	viper.SetDefault("billing.usage_retention_days", 90)
	viper.SetDefault("billing.timezone", "UTC")

	// Payment provider defaults
	viper.SetDefault("payment.base_url", "https://api.payments.example.com")
	viper.SetDefault("payment.timeout_seconds", 30)

	// Analytics defaults
	viper.SetDefault("analytics.stream_key", "meterline:usage:events")
	viper.SetDefault("analytics.buffer_size", 1024)

	// Credential defaults
	viper.SetDefault("credential.fresh_ttl_seconds", 60)
	viper.SetDefault("credential.stale_ttl_seconds", 600)
}
