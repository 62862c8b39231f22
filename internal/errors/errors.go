// Package errors provides the error definitions used across filemutex: the
// typed acquisition-timeout failure, configuration validation errors,
// registry I/O errors, and classification helpers.
//
// # Error Types
//
//   - CantLockError: the advisory lock could not be obtained before the
//     configured timeout. This is the only failure the mutex reports as part
//     of normal operation.
//   - ValidationError: invalid construction parameters or configuration.
//   - RegistryError: the reference-count registry could not open a lock file
//     or persist its counts.
//
// # Usage
//
// Checking errors:
//
//	err := m.Open(true, criticalSection)
//	if errors.Is(err, errors.ErrCantLock) { ... }
//
//	var cantLock *errors.CantLockError
//	if errors.As(err, &cantLock) {
//	    fmt.Println(cantLock.Waited, cantLock.Contents)
//	}
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrCantLock indicates that the advisory lock was not obtained in time.
	ErrCantLock = New("can't lock")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrRegistryCorrupt indicates registry content that could not be decoded.
	// It is only ever logged; the registry treats such content as empty.
	ErrRegistryCorrupt = New("registry content corrupt")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// MutexError is the base interface for all filemutex errors.
type MutexError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// CantLockError
// -----------------------------------------------------------------------------

// CantLockError reports that a session gave up waiting for the advisory lock.
// It carries the diagnostic snapshot taken when the wait was abandoned.
//
// Example:
//
//	var cl *errors.CantLockError
//	if errors.As(err, &cl) {
//	    log.Printf("waited %s on %s, holder: %s", cl.Waited, cl.LockPath, cl.Contents)
//	}
type CantLockError struct {
	baseError
	Target    string
	LockPath  string
	Exclusive bool
	Start     time.Time
	Waited    time.Duration
	Timeout   time.Duration
	ModTime   time.Time // zero when the lock file could not be stat'ed
	Contents  string    // best-effort snapshot of the holder's badge
}

// NewCantLockError creates a CantLockError. The message is built from the
// supplied fields.
func NewCantLockError(target, lockPath string, exclusive bool, start time.Time, waited, timeout time.Duration) *CantLockError {
	e := &CantLockError{
		baseError: baseError{
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Target:    target,
		LockPath:  lockPath,
		Exclusive: exclusive,
		Start:     start,
		Waited:    waited,
		Timeout:   timeout,
	}
	e.message = e.describe()
	return e
}

// WithSnapshot records the lock file's modification time and contents.
func (e *CantLockError) WithSnapshot(modTime time.Time, contents string) *CantLockError {
	e.ModTime = modTime
	e.Contents = contents
	e.message = e.describe()
	return e
}

// Message returns the diagnostic message without the error prefix.
func (e *CantLockError) Message() string {
	return e.message
}

func (e *CantLockError) describe() string {
	mode := "shared"
	if e.Exclusive {
		mode = "exclusive"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s lock on %s not acquired after %s (timeout %s), lock file %s",
		mode, e.Target, e.Waited.Round(time.Millisecond), e.Timeout, e.LockPath)
	if !e.ModTime.IsZero() {
		fmt.Fprintf(&sb, " last modified %s ago", time.Since(e.ModTime).Round(time.Millisecond))
	}
	if e.Contents != "" {
		fmt.Fprintf(&sb, " holding %q", strings.TrimSpace(e.Contents))
	}
	return sb.String()
}

// Error returns the formatted error message.
func (e *CantLockError) Error() string {
	return fmt.Sprintf("can't lock: %s", e.message)
}

// Is checks if this error matches the target.
func (e *CantLockError) Is(target error) bool {
	if _, ok := target.(*CantLockError); ok {
		return true
	}
	if target == ErrCantLock || target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// RegistryError
// -----------------------------------------------------------------------------

// RegistryError represents a failure of the reference-count registry to
// open a lock file or persist its counts.
//
// Example:
//
//	err := errors.NewRegistryError("save counts", ioErr).WithLockPath("/tmp/a.lock")
type RegistryError struct {
	baseError
	LockPath     string
	RegistryPath string
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(message string, cause error) *RegistryError {
	return &RegistryError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithLockPath adds the lock file path to the error context.
func (e *RegistryError) WithLockPath(path string) *RegistryError {
	e.LockPath = path
	return e
}

// WithRegistryPath adds the registry location to the error context.
func (e *RegistryError) WithRegistryPath(path string) *RegistryError {
	e.RegistryPath = path
	return e
}

// Error returns the formatted error message.
func (e *RegistryError) Error() string {
	var parts []string
	if e.LockPath != "" {
		parts = append(parts, fmt.Sprintf("lock=%s", e.LockPath))
	}
	if e.RegistryPath != "" {
		parts = append(parts, fmt.Sprintf("registry=%s", e.RegistryPath))
	}

	prefix := "registry error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("registry error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *RegistryError) Is(target error) bool {
	if _, ok := target.(*RegistryError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("timeout must be positive")
//	err = err.WithField("timeout").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsCantLock reports whether err is (or wraps) an acquisition timeout.
func IsCantLock(err error) bool {
	var cl *CantLockError
	return As(err, &cl)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing MutexError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout or ErrCantLock
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var mutexErr MutexError
	if As(err, &mutexErr) {
		return mutexErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrCantLock)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var mutexErr MutexError
	if As(err, &mutexErr) {
		return mutexErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement MutexError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var mutexErr MutexError
	if As(err, &mutexErr) {
		return mutexErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "open lock file")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "open lock file %s", path)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
