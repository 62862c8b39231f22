// Package mutex provides a lock keyed by a filesystem path that excludes
// goroutines in one process and independent processes on the same machine.
//
// A Mutex names a target path and a lock file (target + ".lock" unless
// WithLockPath says otherwise). Each call to Open starts a fresh session:
//
//  1. the lock file's directory is created if missing,
//  2. the session registers with a reference-count registry, which opens
//     the lock file,
//  3. a non-blocking advisory lock is retried every poll interval until it
//     is granted or the timeout passes,
//  4. a badge identifying the holder is written into the lock file,
//  5. the callback runs with the target path,
//  6. the handle is closed, releasing the advisory lock, and the session
//     deregisters. The last session to deregister deletes the lock file.
//
// Step 6 runs however the callback exits, including by panic.
//
// # Modes
//
// Exclusive sessions exclude every other session. Shared sessions exclude
// only exclusive ones; any number may hold the lock together.
//
// # Failure
//
// The only failure reported during normal operation is a timeout, returned
// as *errors.CantLockError with the time waited and a snapshot of the lock
// file. Invalid construction parameters are rejected by New.
//
// # Re-entrancy
//
// Locks are not re-entrant. An exclusive Open of a lock file from inside a
// critical section on that same lock file waits until its timeout, because
// every session opens its own handle. A nested shared Open inside a shared
// session succeeds.
//
// # Example
//
//	m, err := mutex.New("/var/data/index.db", mutex.WithTimeout(5*time.Second))
//	if err != nil {
//	    return err
//	}
//	err = m.Open(true, func(path string) error {
//	    return rebuildIndex(path)
//	})
package mutex
