package mutex

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/flock"
)

// snapshotLimit caps how much of a lock file is quoted in diagnostics.
const snapshotLimit = 512

// wait retries the non-blocking advisory lock on the session's handle until
// it is granted or the timeout passes. Past half the timeout it reports
// progress roughly once a second.
func (m *Mutex) wait(s *Session) (time.Duration, error) {
	start := time.Now()
	every := max(1, int(math.Round(float64(time.Second)/float64(m.poll))))

	for attempts := 0; ; {
		ok, err := flock.TryLock(s.file, s.badge.Exclusive)
		if err != nil {
			return time.Since(start), fmt.Errorf("lock %s: %w", m.lockPath, err)
		}
		if ok {
			return time.Since(start), nil
		}

		time.Sleep(m.poll)
		attempts++
		waited := time.Since(start)

		if waited > m.timeout {
			modTime, contents := m.snapshot()
			return waited, errors.NewCantLockError(m.target, m.lockPath, s.badge.Exclusive, start, waited, m.timeout).
				WithSnapshot(modTime, contents)
		}

		if waited > m.timeout/2 && attempts%every == 0 {
			_, contents := m.snapshot()
			m.debug("still waiting",
				"target", m.target,
				"lock_path", m.lockPath,
				"mode", s.badge.Mode(),
				"session_id", s.badge.ShortSession(),
				"waited", waited.Round(time.Millisecond).String(),
				"holder", contents,
			)
		}
	}
}

// snapshot reads the lock file's modification time and leading contents.
// Both are best effort; zero values mean unavailable.
func (m *Mutex) snapshot() (time.Time, string) {
	var modTime time.Time
	if info, err := os.Stat(m.lockPath); err == nil {
		modTime = info.ModTime()
	}

	f, err := os.Open(m.lockPath)
	if err != nil {
		return modTime, ""
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, snapshotLimit))
	if err != nil {
		return modTime, ""
	}
	return modTime, strings.TrimSpace(string(buf))
}
