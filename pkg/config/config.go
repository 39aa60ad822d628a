package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Headend  HeadendConfig  `mapstructure:"headend"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Web      WebConfig      `mapstructure:"web"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// HeadendConfig holds the head-end connection and login settings
type HeadendConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Address        int           `mapstructure:"address"` // module address for module-scoped commands
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CheckReplies   bool          `mapstructure:"check_replies"` // verify echoed command and correlation id
}

// Addr returns host:port
func (h HeadendConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// SyncConfig holds the periodic access sync settings
type SyncConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Source    string        `mapstructure:"source"`     // upstream source the cards must be bound to
	RateLimit float64       `mapstructure:"rate_limit"` // head-end writes per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
	LockKey   string        `mapstructure:"lock_key"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	// HistoryRetention bounds the age of stored sync runs, 0 = keep all
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// DatabaseConfig selects the billing database
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path"`   // sqlite file
	DSN    string `mapstructure:"dsn"`    // postgres DSN
}

// RedisConfig enables the shared session lock
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WebConfig holds the ops HTTP server configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics configuration. With Port 0 the metrics are
// served by the ops web server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
// Environment overrides use the CA_ prefix, e.g. CA_HEADEND_PASSWORD.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/ca-sync")
	}

	viper.SetEnvPrefix("CA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Head-end defaults
	viper.SetDefault("headend.host", "127.0.0.1")
	viper.SetDefault("headend.port", 4000)
	viper.SetDefault("headend.username", "")
	viper.SetDefault("headend.password", "")
	viper.SetDefault("headend.address", 0)
	viper.SetDefault("headend.connect_timeout", 10*time.Second)
	viper.SetDefault("headend.check_replies", true)

	// Sync defaults
	viper.SetDefault("sync.enabled", false)
	viper.SetDefault("sync.interval", 15*time.Minute)
	viper.SetDefault("sync.source", "default")
	viper.SetDefault("sync.rate_limit", 20.0)
	viper.SetDefault("sync.burst", 5)
	viper.SetDefault("sync.lock_key", "ca-sync:headend")
	viper.SetDefault("sync.lock_ttl", 10*time.Minute)
	viper.SetDefault("sync.history_retention", 30*24*time.Hour)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "data/billing.db")
	viper.SetDefault("database.dsn", "")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 7)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 0)
}
