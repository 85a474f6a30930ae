package gpures

import (
	"log/slog"

	"github.com/gogpu/gpures/internal/logging"
)

// SetLogger configures the logger for gpures and all its sub-packages.
// By default, gpures produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpures:
//   - [slog.LevelDebug]: buffer creation and growth, upload flushes, deferred releases
//   - [slog.LevelInfo]: lifecycle events (backend opened, session closed)
//   - [slog.LevelWarn]: misuse absorbed locally (double remove, dangling views)
//
// Example:
//
//	gpures.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by gpures.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
