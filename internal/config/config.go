package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/filemutex/internal/registry"
)

// Config represents the complete filemutex configuration
type Config struct {
	Lock     LockConfig     `mapstructure:"lock" yaml:"lock"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// LockConfig controls how sessions wait for the advisory lock
type LockConfig struct {
	// TimeoutSeconds bounds how long a session waits before failing (default: 16)
	TimeoutSeconds float64 `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// PollIntervalSeconds is the sleep between lock attempts (default: 0.005)
	PollIntervalSeconds float64 `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// RegistryConfig controls where reference counts are kept
type RegistryConfig struct {
	// Backend is "file" (YAML) or "sqlite" (default: "file")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the registry location. Empty uses the system temp
	// directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls lock diagnostics
type LoggingConfig struct {
	// Enabled turns on "locked", "still waiting" and "unlocked" messages (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "debug")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the log file path. Empty writes to stderr.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated backups (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Registry backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// sqliteFileName is the default database name for the sqlite backend.
const sqliteFileName = "filemutex-refcounts.db"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Lock: LockConfig{
			TimeoutSeconds:      16,
			PollIntervalSeconds: 0.005,
		},
		Registry: RegistryConfig{
			Backend: BackendFile,
			Path:    "",
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "debug",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// Timeout returns the lock timeout as a duration
func (c *LockConfig) Timeout() time.Duration {
	return secondsToDuration(c.TimeoutSeconds)
}

// PollInterval returns the poll interval as a duration
func (c *LockConfig) PollInterval() time.Duration {
	return secondsToDuration(c.PollIntervalSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ResolvedPath returns the registry location, filling in the per-backend
// default when Path is empty.
func (c *RegistryConfig) ResolvedPath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Backend == BackendSQLite {
		return filepath.Join(os.TempDir(), sqliteFileName)
	}
	return registry.DefaultPath()
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Lock defaults
	viper.SetDefault("lock.timeout_seconds", defaults.Lock.TimeoutSeconds)
	viper.SetDefault("lock.poll_interval_seconds", defaults.Lock.PollIntervalSeconds)

	// Registry defaults
	viper.SetDefault("registry.backend", defaults.Registry.Backend)
	viper.SetDefault("registry.path", defaults.Registry.Path)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filemutex")
	}
	// Fall back to ~/.config/filemutex
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filemutex"
	}
	return filepath.Join(home, ".config", "filemutex")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid registry backends
func ValidBackends() []string {
	return []string{BackendFile, BackendSQLite}
}
