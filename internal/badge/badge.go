// Package badge builds the short identity string a session writes into its
// lock file while holding it. The badge is for humans reading a stuck lock
// file; nothing parses it back except to quote it in diagnostics.
package badge

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Badge identifies one acquisition.
type Badge struct {
	PID       int
	Session   string // unique per session, stands in for a thread identity
	Exclusive bool
	Caller    string // file:line of the code that asked for the lock
	Host      string
	At        time.Time
}

// New returns a Badge for a fresh session. skip is the number of stack
// frames between the caller of New and the user code whose call site should
// be recorded, as in runtime.Caller.
func New(exclusive bool, skip int) Badge {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return Badge{
		PID:       os.Getpid(),
		Session:   uuid.NewString(),
		Exclusive: exclusive,
		Caller:    callSite(skip + 1),
		Host:      host,
		At:        time.Now(),
	}
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Mode returns "exclusive" or "shared".
func (b Badge) Mode() string {
	if b.Exclusive {
		return "exclusive"
	}
	return "shared"
}

// ShortSession returns the first block of the session id.
func (b Badge) ShortSession() string {
	if i := strings.IndexByte(b.Session, '-'); i > 0 {
		return b.Session[:i]
	}
	return b.Session
}

// String renders the badge as a single line, e.g.
//
//	pid=4242 session=1b4e28ba mode=exclusive at=worker.go:57 host=build-3 since=2026-10-19T10:04:05Z
func (b Badge) String() string {
	return fmt.Sprintf("pid=%d session=%s mode=%s at=%s host=%s since=%s",
		b.PID, b.ShortSession(), b.Mode(), b.Caller, b.Host, b.At.UTC().Format(time.RFC3339))
}
