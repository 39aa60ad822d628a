package config

import (
	"fmt"
	"strings"
)

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate head-end config
	if cfg.Headend.Host == "" {
		return fmt.Errorf("headend.host is required")
	}
	if cfg.Headend.Port <= 0 || cfg.Headend.Port > 65535 {
		return fmt.Errorf("headend.port must be between 1 and 65535")
	}
	if a := cfg.Headend.Address; a < 0 || (a > 32 && a != 255) {
		return fmt.Errorf("headend.address must be 0-32 or 255, got %d", a)
	}
	if cfg.Headend.ConnectTimeout < 0 {
		return fmt.Errorf("headend.connect_timeout must not be negative")
	}

	// Validate sync config
	if cfg.Sync.Enabled {
		if cfg.Headend.Username == "" {
			return fmt.Errorf("headend.username is required when sync is enabled")
		}
		if cfg.Sync.Interval <= 0 {
			return fmt.Errorf("sync.interval must be positive")
		}
		if cfg.Sync.Source == "" {
			return fmt.Errorf("sync.source is required when sync is enabled")
		}
	}
	if cfg.Sync.RateLimit < 0 {
		return fmt.Errorf("sync.rate_limit must not be negative")
	}
	if cfg.Sync.RateLimit > 0 && cfg.Sync.Burst <= 0 {
		return fmt.Errorf("sync.burst must be positive when sync.rate_limit is set")
	}
	if cfg.Sync.HistoryRetention < 0 {
		return fmt.Errorf("sync.history_retention must not be negative")
	}

	// Validate database config
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: invalid driver %q (must be sqlite or postgres)", cfg.Database.Driver)
	}

	// Validate redis config
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 0 and 65535")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
	}

	// Validate logging config
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: invalid level %q", cfg.Logging.Level)
	}

	return nil
}
