package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateRegistry()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout_seconds",
			Value:   c.Lock.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Lock.PollIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.poll_interval_seconds",
			Value:   c.Lock.PollIntervalSeconds,
			Message: "must be positive",
		})
	} else if c.Lock.Timeout() > 0 && c.Lock.PollInterval() > c.Lock.Timeout() {
		errors = append(errors, ValidationError{
			Field:   "lock.poll_interval_seconds",
			Value:   c.Lock.PollIntervalSeconds,
			Message: "must not exceed lock.timeout_seconds",
		})
	}

	return errors
}

// validateRegistry validates the RegistryConfig
func (c *Config) validateRegistry() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Registry.Backend) {
		errors = append(errors, ValidationError{
			Field:   "registry.backend",
			Value:   c.Registry.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Registry.Path != "" && strings.TrimSpace(c.Registry.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "registry.path",
			Value:   c.Registry.Path,
			Message: "must not be blank",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
