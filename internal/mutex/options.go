package mutex

import (
	"io"
	"time"

	"github.com/Iron-Ham/filemutex/internal/logging"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

// Defaults applied by New.
const (
	DefaultTimeout      = 16 * time.Second
	DefaultPollInterval = 5 * time.Millisecond
)

// Option configures a Mutex.
type Option func(*Mutex)

// WithLockPath uses path as the lock file instead of target + ".lock".
func WithLockPath(path string) Option {
	return func(m *Mutex) {
		m.lockPath = path
		m.customLockPath = true
	}
}

// WithTimeout bounds how long a session waits for the advisory lock.
func WithTimeout(d time.Duration) Option {
	return func(m *Mutex) {
		m.timeout = d
	}
}

// WithPollInterval sets the sleep between lock attempts.
func WithPollInterval(d time.Duration) Option {
	return func(m *Mutex) {
		m.poll = d
	}
}

// WithLogging turns the "locked", "still waiting" and "unlocked"
// diagnostics on or off. They are off by default.
func WithLogging(enabled bool) Option {
	return func(m *Mutex) {
		m.logging = enabled
	}
}

// WithLogger sends diagnostics to sink. *logging.Logger and *slog.Logger
// both qualify. It does not enable logging by itself.
func WithLogger(sink logging.Sink) Option {
	return func(m *Mutex) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithLogWriter sends diagnostics to w as plain text lines.
func WithLogWriter(w io.Writer) Option {
	return func(m *Mutex) {
		if w != nil {
			m.sink = logging.WriterSink(w)
		}
	}
}

// WithRegistry uses reg for reference counting instead of DefaultRegistry.
// Every Mutex sharing a lock file must agree on the registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(m *Mutex) {
		if reg != nil {
			m.registry = reg
		}
	}
}
