package mutex

import (
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/filemutex/internal/badge"
)

// State is a step in a session's life.
type State int

// Session states. A successful session moves Idle, Registering, Acquiring,
// Held, Releasing, Deregistered. One that times out moves Idle,
// Registering, Acquiring, Failed, Deregistered.
const (
	StateIdle State = iota
	StateRegistering
	StateAcquiring
	StateHeld
	StateReleasing
	StateFailed
	StateDeregistered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateReleasing:
		return "releasing"
	case StateFailed:
		return "failed"
	case StateDeregistered:
		return "deregistered"
	default:
		return "unknown"
	}
}

// Session is one acquire, use, release cycle. It owns the lock file handle
// while held. Sessions are single use.
type Session struct {
	m          *Mutex
	badge      badge.Badge
	file       *os.File
	acquiredAt time.Time
	waited     time.Duration

	mu    sync.Mutex
	state State
}

func newSession(m *Mutex, b badge.Badge) *Session {
	return &Session{m: m, badge: b, state: StateIdle}
}

// Badge returns the identity written into the lock file.
func (s *Session) Badge() badge.Badge { return s.badge }

// Target returns the protected path.
func (s *Session) Target() string { return s.m.target }

// LockPath returns the lock file path.
func (s *Session) LockPath() string { return s.m.lockPath }

// Exclusive reports whether the session holds the lock exclusively.
func (s *Session) Exclusive() bool { return s.badge.Exclusive }

// AcquiredAt returns when the advisory lock was granted.
func (s *Session) AcquiredAt() time.Time { return s.acquiredAt }

// Waited returns how long the session waited for the advisory lock.
func (s *Session) Waited() time.Duration { return s.waited }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// writeBadge replaces the lock file contents with the badge. Failures only
// cost diagnostics.
func (s *Session) writeBadge() {
	if err := s.file.Truncate(0); err != nil {
		s.m.debug("badge write failed", "lock_path", s.m.lockPath, "error", err.Error())
		return
	}
	if _, err := s.file.WriteAt([]byte(s.badge.String()+"\n"), 0); err != nil {
		s.m.debug("badge write failed", "lock_path", s.m.lockPath, "error", err.Error())
	}
}

// Release closes the lock file handle, which drops the advisory lock, and
// deregisters the session. Calling Release again is a no-op returning nil.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.state != StateHeld {
		s.mu.Unlock()
		return nil
	}
	s.state = StateReleasing
	s.mu.Unlock()

	held := time.Since(s.acquiredAt)
	err := s.m.registry.Deregister(s.m.lockPath, s.file)
	s.file = nil
	s.setState(StateDeregistered)

	s.m.debug("unlocked",
		"target", s.m.target,
		"lock_path", s.m.lockPath,
		"mode", s.badge.Mode(),
		"session_id", s.badge.ShortSession(),
		"held", held.Round(time.Microsecond).String(),
	)
	return err
}
