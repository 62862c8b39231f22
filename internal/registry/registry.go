package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/logging"
)

// DefaultFileName is the base name of the machine-wide registry file.
const DefaultFileName = "filemutex-refcounts.yaml"

// DefaultPath returns the well-known registry location in the system temp
// directory.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFileName)
}

// Registry tracks how many live sessions reference each lock file. It is
// safe for concurrent use by multiple goroutines, and by multiple processes
// when built with a cross-process guard.
type Registry struct {
	mu     sync.Mutex // serializes goroutines; the guard only serializes processes
	store  Store
	guard  Locker
	logger *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for corruption and cleanup diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithGuard replaces the cross-process guard.
func WithGuard(guard Locker) Option {
	return func(r *Registry) {
		if guard != nil {
			r.guard = guard
		}
	}
}

// New creates a Registry over store. Without WithGuard only goroutines in
// this process are serialized.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		guard:  nopLocker{},
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewMemoryRegistry returns a Registry backed by a MemoryStore.
func NewMemoryRegistry(opts ...Option) *Registry {
	return New(NewMemoryStore(), opts...)
}

// NewFileRegistry returns a Registry backed by a YAML FileStore at path and
// guarded by an advisory lock on path+".lock".
func NewFileRegistry(path string, opts ...Option) (*Registry, error) {
	abs, err := prepare(path)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithGuard(flock.New(abs + ".lock"))}, opts...)
	return New(NewFileStore(abs), opts...), nil
}

// NewSQLiteRegistry returns a Registry backed by a SQLite database at path
// and guarded by an advisory lock on path+".lock". Close releases the
// database.
func NewSQLiteRegistry(path string, opts ...Option) (*Registry, error) {
	abs, err := prepare(path)
	if err != nil {
		return nil, err
	}
	store, err := OpenSQLiteStore(abs)
	if err != nil {
		return nil, errors.NewRegistryError("open sqlite store", err).WithRegistryPath(abs)
	}
	opts = append([]Option{WithGuard(flock.New(abs + ".lock"))}, opts...)
	return New(store, opts...), nil
}

func prepare(path string) (string, error) {
	if path == "" {
		return "", errors.NewValidationError("registry path must not be empty").WithField("registry.path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewValidationError("registry path cannot be made absolute").
			WithField("registry.path").WithValue(path).WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", errors.NewRegistryError("create registry directory", err).WithRegistryPath(abs)
	}
	return abs, nil
}

// Location describes where the counts are stored.
func (r *Registry) Location() string {
	return r.store.Location()
}

// Close releases resources held by the store, if any.
func (r *Registry) Close() error {
	if c, ok := r.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Register opens (creating if needed) the lock file at lockPath and records
// one more live session for it. The returned handle belongs to the caller
// and must be passed back to Deregister.
func (r *Registry) Register(lockPath string) (*os.File, error) {
	lockPath, err := absLockPath(lockPath)
	if err != nil {
		return nil, err
	}

	var f *os.File
	err = r.guarded(func() error {
		var openErr error
		f, openErr = os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
		if openErr != nil {
			return errors.NewRegistryError("open lock file", openErr).WithLockPath(lockPath)
		}

		counts := r.load()
		counts[lockPath]++
		if saveErr := r.store.Save(counts); saveErr != nil {
			_ = f.Close()
			f = nil
			return errors.NewRegistryError("save counts", saveErr).
				WithLockPath(lockPath).WithRegistryPath(r.store.Location())
		}

		r.logger.Debug("registered", "lock_path", lockPath, "count", counts[lockPath])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Deregister closes f, which releases any advisory lock held through it, and
// records one fewer live session for lockPath. When no sessions remain the
// lock file is deleted. A nil f is allowed. f is closed even when the count
// cannot be updated.
func (r *Registry) Deregister(lockPath string, f *os.File) error {
	if f != nil {
		_ = f.Close()
	}

	lockPath, err := absLockPath(lockPath)
	if err != nil {
		return err
	}

	return r.guarded(func() error {
		counts := r.load()
		remaining := counts[lockPath] - 1
		if remaining > 0 {
			counts[lockPath] = remaining
		} else {
			delete(counts, lockPath)
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				r.logger.Debug("lock file cleanup failed", "lock_path", lockPath, "error", rmErr.Error())
			}
		}

		if saveErr := r.store.Save(counts); saveErr != nil {
			return errors.NewRegistryError("save counts", saveErr).
				WithLockPath(lockPath).WithRegistryPath(r.store.Location())
		}

		r.logger.Debug("deregistered", "lock_path", lockPath, "count", max(remaining, 0))
		return nil
	})
}

// Count returns the number of live sessions recorded for lockPath.
func (r *Registry) Count(lockPath string) int {
	lockPath, err := absLockPath(lockPath)
	if err != nil {
		return 0
	}
	return r.Snapshot()[lockPath]
}

// Snapshot returns a copy of all recorded counts.
func (r *Registry) Snapshot() Counts {
	var counts Counts
	err := r.guarded(func() error {
		counts = r.load()
		return nil
	})
	if err != nil {
		r.logger.Debug("snapshot failed", "error", err.Error())
		return make(Counts)
	}
	return counts
}

// guarded runs fn with both the in-process mutex and the cross-process
// guard held.
func (r *Registry) guarded(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.guard.Lock(); err != nil {
		return errors.NewRegistryError("acquire registry guard", err).WithRegistryPath(r.store.Location())
	}
	defer func() {
		if err := r.guard.Unlock(); err != nil {
			r.logger.Debug("release registry guard failed", "error", err.Error())
		}
	}()

	return fn()
}

// load reads the store, replacing anything unreadable with an empty table.
func (r *Registry) load() Counts {
	counts, err := r.store.Load()
	if err != nil {
		r.logger.Debug("registry unreadable, starting fresh",
			"registry", r.store.Location(), "error", err.Error())
		return make(Counts)
	}
	if counts == nil {
		return make(Counts)
	}
	return counts
}

func absLockPath(lockPath string) (string, error) {
	if lockPath == "" {
		return "", errors.NewValidationError("lock path must not be empty").WithField("lock_path")
	}
	abs, err := filepath.Abs(lockPath)
	if err != nil {
		return "", fmt.Errorf("resolve lock path %s: %w", lockPath, err)
	}
	return abs, nil
}
