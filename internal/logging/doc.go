// Package logging provides the diagnostics side of filemutex.
//
// Lock diagnostics ("locked", "still waiting", "unlocked", registry
// bookkeeping) are emitted through a [Sink], a one-method interface
// satisfied by this package's [Logger], by *slog.Logger, and by [LineSink]
// for plain writers. [NewSink] picks the right adapter by capability.
//
// # Logger
//
// [Logger] wraps log/slog with a JSON handler:
//
//	logger, err := logging.NewLogger("/var/log/filemutex.log", logging.LevelDebug)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithLock("/data/a.txt.lock").Debug("locked", "waited", "12ms")
//
// An empty path logs to stderr. [NopLogger] discards everything and is
// what tests and disabled logging use.
//
// # Rotation
//
// Long-lived processes that hold many locks can cap the diagnostics file:
//
//	logger, err := logging.NewLoggerWithRotation(path, logging.LevelDebug, logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package logging
