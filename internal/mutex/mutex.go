package mutex

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/filemutex/internal/badge"
	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/logging"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *registry.Registry
)

// DefaultRegistry returns the process-wide registry, a YAML file registry at
// registry.DefaultPath. It is built on first use. If the file registry
// cannot be created, an in-memory registry is used instead.
func DefaultRegistry() *registry.Registry {
	defaultRegistryOnce.Do(func() {
		reg, err := registry.NewFileRegistry(registry.DefaultPath())
		if err != nil {
			reg = registry.NewMemoryRegistry()
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Mutex is a lock on a target path. It holds configuration only; every
// Open or Acquire starts an independent session, so one Mutex may be used
// from many goroutines at once.
type Mutex struct {
	target         string
	lockPath       string
	customLockPath bool
	timeout        time.Duration
	poll           time.Duration
	logging        bool
	sink           logging.Sink
	registry       *registry.Registry
}

// New validates the parameters and returns a Mutex for target. Paths are
// made absolute; the target itself is never opened.
func New(target string, opts ...Option) (*Mutex, error) {
	m := &Mutex{
		target:  target,
		timeout: DefaultTimeout,
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	var err error
	if m.target, err = filepath.Abs(m.target); err != nil {
		return nil, errors.NewValidationError("target path cannot be made absolute").
			WithField("target").WithValue(target).WithCause(err)
	}
	if !m.customLockPath {
		m.lockPath = m.target + ".lock"
	}
	if m.lockPath, err = filepath.Abs(m.lockPath); err != nil {
		return nil, errors.NewValidationError("lock path cannot be made absolute").
			WithField("lock_path").WithValue(m.lockPath).WithCause(err)
	}

	if m.sink == nil {
		m.sink = logging.WriterSink(os.Stderr)
	}
	if m.registry == nil {
		m.registry = DefaultRegistry()
	}
	return m, nil
}

func (m *Mutex) validate() error {
	switch {
	case m.target == "":
		return errors.NewValidationError("target path must not be empty").WithField("target")
	case m.customLockPath && m.lockPath == "":
		return errors.NewValidationError("lock path must not be empty").WithField("lock_path")
	case m.timeout <= 0:
		return errors.NewValidationError("timeout must be positive").WithField("timeout").WithValue(m.timeout)
	case m.poll <= 0:
		return errors.NewValidationError("poll interval must be positive").WithField("poll_interval").WithValue(m.poll)
	}
	return nil
}

// Target returns the absolute target path.
func (m *Mutex) Target() string { return m.target }

// LockPath returns the absolute lock file path.
func (m *Mutex) LockPath() string { return m.lockPath }

// Timeout returns the acquisition timeout.
func (m *Mutex) Timeout() time.Duration { return m.timeout }

// PollInterval returns the sleep between lock attempts.
func (m *Mutex) PollInterval() time.Duration { return m.poll }

// Registry returns the reference-count registry in use.
func (m *Mutex) Registry() *registry.Registry { return m.registry }

// Open runs fn while holding the lock in the requested mode. fn receives
// the target path and runs exactly once per successful acquisition; a nil
// fn only acquires and releases. The lock is released on every exit path.
//
// On timeout Open returns a *errors.CantLockError and fn does not run. An
// error from fn is returned as is; a release failure is returned only when
// fn succeeded.
func (m *Mutex) Open(exclusive bool, fn func(path string) error) (err error) {
	s, err := m.acquire(exclusive, 2)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := s.Release(); err == nil {
			err = relErr
		}
	}()

	if fn == nil {
		return nil
	}
	return fn(m.target)
}

// OpenValue is Open for callbacks that produce a value.
func OpenValue[T any](m *Mutex, exclusive bool, fn func(path string) (T, error)) (v T, err error) {
	s, err := m.acquire(exclusive, 2)
	if err != nil {
		return v, err
	}
	defer func() {
		if relErr := s.Release(); err == nil {
			err = relErr
		}
	}()

	if fn == nil {
		return v, nil
	}
	return fn(m.target)
}

// Acquire starts a session and returns it holding the lock. The caller must
// call Release, typically with defer:
//
//	s, err := m.Acquire(true)
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
func (m *Mutex) Acquire(exclusive bool) (*Session, error) {
	return m.acquire(exclusive, 2)
}

// acquire runs a session up to Held. skip counts the frames between the
// user's call and badge.New, so the badge records the user's call site.
func (m *Mutex) acquire(exclusive bool, skip int) (*Session, error) {
	s := newSession(m, badge.New(exclusive, skip))

	s.setState(StateRegistering)
	// A failure here surfaces from Register, which cannot open the file.
	_ = os.MkdirAll(filepath.Dir(m.lockPath), 0755)

	f, err := m.registry.Register(m.lockPath)
	if err != nil {
		s.setState(StateFailed)
		s.setState(StateDeregistered)
		return nil, err
	}
	s.file = f

	s.setState(StateAcquiring)
	waited, err := m.wait(s)
	s.waited = waited
	if err != nil {
		s.setState(StateFailed)
		if derr := m.registry.Deregister(m.lockPath, f); derr != nil {
			m.debug("deregister after failed acquisition", "lock_path", m.lockPath, "error", derr.Error())
		}
		s.file = nil
		s.setState(StateDeregistered)
		return nil, err
	}

	s.acquiredAt = time.Now()
	s.setState(StateHeld)
	s.writeBadge()
	m.debug("locked",
		"target", m.target,
		"lock_path", m.lockPath,
		"mode", s.badge.Mode(),
		"session_id", s.badge.ShortSession(),
		"waited", waited.Round(time.Microsecond).String(),
	)
	return s, nil
}

// debug forwards to the sink when logging is enabled.
func (m *Mutex) debug(msg string, args ...any) {
	if m.logging {
		m.sink.Debug(msg, args...)
	}
}
