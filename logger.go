package qsim

import (
	"log/slog"
	"sync/atomic"
)

// Log levels used by qsim:
//   - [slog.LevelDebug]: merged read plans, pipeline runs and their sizes
//   - [slog.LevelInfo]: engine creation, hardware device registration
//   - [slog.LevelWarn]: hardware device unavailable, failed pipeline nodes
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(silent())
}

func silent() *slog.Logger { return slog.New(slog.DiscardHandler) }

// SetLogger sets the package logger used by engines created without
// WithLogger and by the registered hardware device. Nothing is logged by
// default; nil restores that.
//
// SetLogger is safe for concurrent use.
//
// Example:
//
//	qsim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent()
	}
	logger.Store(l)

	if d := RegisteredDevice(); d != nil {
		propagateLogger(d, l)
	}
}

// Logger returns the package logger. The gpu package and cmd/qsim log
// through it.
func Logger() *slog.Logger {
	return logger.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(d any, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// engineSeq numbers engines in log records.
var engineSeq atomic.Uint64

// log returns the engine's logger, tagged with its sequence number.
func (e *Engine) log() *slog.Logger {
	l := e.logger
	if l == nil {
		l = Logger()
	}
	return l.With("engine", e.seq)
}
