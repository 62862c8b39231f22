// Package registry keeps the machine-wide reference counts that decide when
// a lock file may be deleted.
//
// Every session that opens a lock file registers it first and deregisters it
// after closing its handle. The registry counts live sessions per absolute
// lock path; the session that brings a count to zero unlinks the lock file.
// Opening (in Register) and unlinking (in Deregister) both happen while the
// registry's own guard is held, so a lock file is never deleted between
// another session's open and its increment.
//
// # Backends
//
// The counts are persisted by a Store:
//
//   - MemoryStore keeps them in process memory. Useful in tests, and for
//     programs whose lockers all live in one process.
//   - FileStore writes a YAML mapping of lock path to count, replaced
//     atomically on every save.
//   - SQLiteStore keeps one row per lock path in a SQLite database.
//
// The file and SQLite registries guard access with an advisory lock on a
// sibling "<path>.lock" file so that unrelated processes serialize too.
//
// Unreadable or malformed stored counts are never reported to callers. They
// are logged and replaced by an empty table, since the OS advisory lock and
// not the lock file's existence is what provides exclusion.
package registry
