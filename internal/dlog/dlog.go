// Package dlog wraps charmbracelet/log with the capture program's
// severity conventions: Info for lifecycle events, Warn for non-fatal
// parameter problems, and Fatal for init failures that abort the
// process with a single diagnostic line (spec §7). None of these are
// ever called from inside the capture loop's hot path — logging there
// would violate the "no I/O inside a suspension-free stretch" rule of
// spec §5.
package dlog

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// Info logs a lifecycle event (startup, TCP connect) or a completed
// sweep's summary.
func Info(msg string, keyvals ...interface{}) {
	logger.Info(msg, keyvals...)
}

// Warn logs a non-fatal parameter problem, such as --sum being
// silently disabled for decimation > 4 (spec §7).
func Warn(msg string, keyvals ...interface{}) {
	logger.Warn(msg, keyvals...)
}

// Fatal logs a single diagnostic line and exits the process with a
// non-zero status, matching the init-failure contract of spec §7.
func Fatal(msg string, keyvals ...interface{}) {
	logger.Fatal(msg, keyvals...)
}
