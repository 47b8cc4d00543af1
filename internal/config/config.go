// Package config provides configuration management for dashingest using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultTranscodeWorkers  = 2
	defaultRetryDelay        = time.Second
	defaultPollInterval      = 5 * time.Second
	defaultLockTimeout       = 6 * time.Hour
	defaultSchedulerInterval = 15 * time.Second
	defaultMisfireGrace      = 60 * time.Second
	defaultTempMaxAge        = time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Media     MediaConfig     `mapstructure:"media"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestLogging  bool          `mapstructure:"request_logging"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds working directory configuration.
type StorageConfig struct {
	BaseDir    string        `mapstructure:"base_dir"`
	TempDir    string        `mapstructure:"temp_dir"`
	TempMaxAge time.Duration `mapstructure:"temp_max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds external binary configuration.
type FFmpegConfig struct {
	BinaryPath   string `mapstructure:"binary_path"`   // Path to ffmpeg binary (empty = auto-detect)
	ProbePath    string `mapstructure:"probe_path"`    // Path to ffprobe binary (empty = auto-detect)
	PackagerPath string `mapstructure:"packager_path"` // Path to MP4Box binary (empty = auto-detect)
}

// TranscodeConfig holds job runner and promotion configuration.
type TranscodeConfig struct {
	Workers      int           `mapstructure:"workers"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
}

// MediaConfig holds the destination roots seeded into the settings store
// when the store does not have them yet.
type MediaConfig struct {
	OptimizedVideosDir string `mapstructure:"optimized_videos_dir"`
	OriginalVideosDir  string `mapstructure:"original_videos_dir"`
}

// SchedulerConfig holds queue schedule configuration.
type SchedulerConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	MisfireGrace time.Duration `mapstructure:"misfire_grace"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with DASHINGEST_ and use underscores for nesting.
// Example: DASHINGEST_SERVER_PORT=8080.
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
		v.AddConfigPath("/etc/dashingest")
		v.AddConfigPath("$HOME/.dashingest")
	}

	v.SetEnvPrefix("DASHINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", 0) // progress streams stay open
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_logging", true)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "dashingest.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.temp_max_age", defaultTempMaxAge)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.packager_path", "")

	// Transcode defaults
	v.SetDefault("transcode.workers", defaultTranscodeWorkers)
	v.SetDefault("transcode.retry_delay", defaultRetryDelay)
	v.SetDefault("transcode.poll_interval", defaultPollInterval)
	v.SetDefault("transcode.lock_timeout", defaultLockTimeout)

	// Media defaults (empty = must be set through the settings API)
	v.SetDefault("media.optimized_videos_dir", "")
	v.SetDefault("media.original_videos_dir", "")

	// Scheduler defaults
	v.SetDefault("scheduler.sync_interval", defaultSchedulerInterval)
	v.SetDefault("scheduler.misfire_grace", defaultMisfireGrace)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Transcode.Workers < 1 {
		return fmt.Errorf("transcode.workers must be at least 1")
	}
	if c.Transcode.RetryDelay <= 0 {
		return fmt.Errorf("transcode.retry_delay must be positive")
	}
	if c.Scheduler.MisfireGrace < 0 {
		return fmt.Errorf("scheduler.misfire_grace must not be negative")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TempPath returns the full path to the temp directory. An absolute
// temp_dir is used as is.
func (c *StorageConfig) TempPath() string {
	if filepath.IsAbs(c.TempDir) {
		return c.TempDir
	}
	return filepath.Join(c.BaseDir, c.TempDir)
}
