package cmd

import (
	"fmt"

	"github.com/Iron-Ham/filemutex/internal/config"
	"github.com/Iron-Ham/filemutex/internal/logging"
	"github.com/Iron-Ham/filemutex/internal/mutex"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

// loadConfig returns the validated configuration. Commands that lock fail
// on an invalid file rather than silently using defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostics logger described by cfg. A disabled
// configuration yields a logger that discards everything.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Logging.File, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// openRegistry opens the registry backend named by cfg.
func openRegistry(cfg *config.Config, logger *logging.Logger) (*registry.Registry, error) {
	path := cfg.Registry.ResolvedPath()
	switch cfg.Registry.Backend {
	case config.BackendSQLite:
		return registry.NewSQLiteRegistry(path, registry.WithLogger(logger))
	default:
		return registry.NewFileRegistry(path, registry.WithLogger(logger))
	}
}

// mutexOptions translates cfg into mutex options. Flag overrides are
// appended by the caller and win because later options apply last.
func mutexOptions(cfg *config.Config, reg *registry.Registry, logger *logging.Logger) []mutex.Option {
	return []mutex.Option{
		mutex.WithRegistry(reg),
		mutex.WithTimeout(cfg.Lock.Timeout()),
		mutex.WithPollInterval(cfg.Lock.PollInterval()),
		mutex.WithLogging(cfg.Logging.Enabled),
		mutex.WithLogger(logger),
	}
}
