package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	State    StateConfig    `mapstructure:"state"`
	Timers   TimersConfig   `mapstructure:"timers"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig locates the SQLite database holding tools and usage.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig selects where client-side state (open timers, preferences)
// is persisted.
type StateConfig struct {
	Backend  string      `mapstructure:"backend"` // "sqlite", "bolt", "redis" or "memory"
	BoltPath string      `mapstructure:"bolt_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// TimersConfig tunes the session timer registry.
type TimersConfig struct {
	TickInterval string `mapstructure:"tick_interval"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
	File   string `mapstructure:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from file and environment variables. An empty
// configPath searches the default config directory; a missing file is not
// an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	setDefaults(v, dir)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("STACKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultDir returns ~/.config/stackvault
func DefaultDir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "stackvault"), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("database.path", filepath.Join(dir, "stackvault.db"))

	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.bolt_path", filepath.Join(dir, "state.bolt"))
	v.SetDefault("state.redis.host", "localhost")
	v.SetDefault("state.redis.port", 6379)
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.pool_size", 4)
	v.SetDefault("state.redis.min_idle_conns", 1)
	v.SetDefault("state.redis.dial_timeout", "5s")
	v.SetDefault("state.redis.read_timeout", "3s")
	v.SetDefault("state.redis.write_timeout", "3s")

	v.SetDefault("timers.tick_interval", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", filepath.Join(dir, "stackvault.log"))

	v.SetDefault("metrics.addr", "")
}

func validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch cfg.State.Backend {
	case "sqlite", "memory":
	case "bolt":
		if cfg.State.BoltPath == "" {
			return fmt.Errorf("state.bolt_path is required for the bolt backend")
		}
	case "redis":
		if cfg.State.Redis.Host == "" {
			return fmt.Errorf("state.redis.host is required for the redis backend")
		}
	default:
		return fmt.Errorf("state.backend must be sqlite, bolt, redis or memory, got %q", cfg.State.Backend)
	}

	d, err := time.ParseDuration(cfg.Timers.TickInterval)
	if err != nil {
		return fmt.Errorf("invalid timers.tick_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("timers.tick_interval must be positive")
	}

	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	return nil
}

// Interval returns the parsed tick interval, falling back to one second.
func (c TimersConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
