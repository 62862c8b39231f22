// Package flock is the OS advisory-lock primitive underneath filemutex: a
// single non-blocking attempt to take a shared or exclusive lock on an open
// file, and its release.
//
// Locks belong to the open file description, not the process, so two
// handles opened separately on the same path contend with each other even
// inside one process. Closing the handle releases the lock, which is also
// what the OS does when the owning process exits.
package flock

import "errors"

// ErrUnsupported is returned on platforms without an advisory lock call.
var ErrUnsupported = errors.New("advisory file locking is not supported on this platform")
