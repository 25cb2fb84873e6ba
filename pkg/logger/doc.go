// Package logger provides the structured logging interface used across
// repostreach.
//
// It wraps zerolog behind a small Logger interface so packages can take a
// logger as a dependency and tests can swap in a TestLogger or a no-op
// logger. A process-wide logger is available through GetLogger once
// Initialize has been called from the CLI.
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.WithField("phase", "collect").Info("Phase started")
//
// The helpers in this package (LogCooldown, LogPhaseProgress, LogMisses)
// keep field names consistent between the collector and follower counter.
package logger
