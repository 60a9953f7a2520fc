// Package logger provides a small, levelled, thread-safe logger.
//
// Every line carries a millisecond timestamp, the level and, optionally,
// the component that produced it (a worker, the bench engine, the API
// server):
//
//	[2026-10-18 12:00:00.000] [WARN] [worker-3] job #42 panicked: boom
//
// # Basic Usage
//
//	logger.Info("", "hashpool started")
//	logger.Warn("worker-3", "job #%d panicked: %v", seq, r)
//
// Long-lived goroutines bind their component once:
//
//	log := logger.For("worker-3")
//	log.Warn("job #%d panicked: %v", seq, r)
//	if log.Enabled(logger.LevelDebug) {
//		log.Debug("stack:\n%s", debug.Stack())
//	}
//
// A dedicated logger writes elsewhere:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("bench", "strategy %s started", name)
//
// # Levels
//
// Messages below the configured level are dropped. ParseLevel maps the
// names used in config files and flags ("debug", "info", "warn", "error")
// to a Level. SetOutput redirects the default logger, e.g. to a log file.
//
// All operations are safe for concurrent use.
package logger
