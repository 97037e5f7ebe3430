// Package config provides configuration management for restreamer using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "RESTREAMER"

// Default configuration values.
const (
	defaultServerPort       = 5000
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 15 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultRateLimitWindow  = 15 * time.Minute
	defaultRateLimitMax     = 100
	defaultStopGrace        = 5 * time.Second
	defaultPollInterval     = time.Minute
	defaultHistoryRetention = "90d"
	defaultHistoryCleanup   = 6 * time.Hour
	defaultPublishRetries   = 3
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host"`
	Port            int             `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Requests is the number of requests allowed per Window.
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// StorageConfig holds media storage configuration.
type StorageConfig struct {
	// MediaDir holds uploaded videos as <media_dir>/<owner_id>/<filename>.
	MediaDir string `mapstructure:"media_dir" yaml:"media_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// RelayConfig holds relay process configuration.
type RelayConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"` // empty = auto-detect
	// StopGrace is how long a relay gets to exit after a graceful stop before it is killed.
	StopGrace      time.Duration `mapstructure:"stop_grace" yaml:"stop_grace"`
	DefaultQuality string        `mapstructure:"default_quality" yaml:"default_quality"`
}

// SchedulerConfig holds schedule poller configuration.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// HistoryConfig holds session history retention.
type HistoryConfig struct {
	// Retention supports human-readable values like "90d" or "12w". Zero keeps history forever.
	Retention       Duration      `mapstructure:"retention" yaml:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// EventsConfig holds the optional Redis event bus.
type EventsConfig struct {
	RedisURL       string `mapstructure:"redis_url" yaml:"redis_url"` // empty = disabled
	Channel        string `mapstructure:"channel" yaml:"channel"`
	PublishRetries int    `mapstructure:"publish_retries" yaml:"publish_retries"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with RESTREAMER_ and use underscores for nesting.
// Example: RESTREAMER_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/restreamer")
		v.AddConfigPath("$HOME/.restreamer")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it loads ./.env.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests", defaultRateLimitMax)
	v.SetDefault("server.rate_limit.window", defaultRateLimitWindow)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "restreamer.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.media_dir", "./uploads/videos")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Relay defaults
	v.SetDefault("relay.ffmpeg_path", "")
	v.SetDefault("relay.stop_grace", defaultStopGrace)
	v.SetDefault("relay.default_quality", "1080p")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.poll_interval", defaultPollInterval)

	// History defaults
	v.SetDefault("history.retention", defaultHistoryRetention)
	v.SetDefault("history.cleanup_interval", defaultHistoryCleanup)

	// Events defaults
	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.channel", "restreamer:events")
	v.SetDefault("events.publish_retries", defaultPublishRetries)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Requests < 1 {
			return fmt.Errorf("server.rate_limit.requests must be at least 1")
		}
		if c.Server.RateLimit.Window <= 0 {
			return fmt.Errorf("server.rate_limit.window must be positive")
		}
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.MediaDir == "" {
		return fmt.Errorf("storage.media_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Relay.StopGrace <= 0 {
		return fmt.Errorf("relay.stop_grace must be positive")
	}
	validQualities := map[string]bool{"720p": true, "1080p": true, "4k": true}
	if !validQualities[c.Relay.DefaultQuality] {
		return fmt.Errorf("relay.default_quality must be one of: 720p, 1080p, 4k")
	}

	if c.Scheduler.Enabled && c.Scheduler.PollInterval < time.Second {
		return fmt.Errorf("scheduler.poll_interval must be at least 1s")
	}

	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	if c.Events.RedisURL != "" {
		if c.Events.Channel == "" {
			return fmt.Errorf("events.channel is required when events.redis_url is set")
		}
		if c.Events.PublishRetries < 0 {
			return fmt.Errorf("events.publish_retries must not be negative")
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MediaPath returns the absolute media directory.
func (c *StorageConfig) MediaPath() string {
	abs, err := filepath.Abs(c.MediaDir)
	if err != nil {
		return c.MediaDir
	}
	return abs
}
