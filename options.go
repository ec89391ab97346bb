package qsim

import (
	"log/slog"

	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
)

// MaxQubits is the largest register any engine accepts.
const MaxQubits = bits.MaxQubits

// EngineOption configures an Engine during creation.
//
// Example:
//
//	// Software evaluation with 4 workers and a 64 MB buffer budget
//	e, err := qsim.NewEngine(qsim.WithWorkers(4), qsim.WithMemoryBudgetMB(64))
type EngineOption func(*engineOptions)

type engineOptions struct {
	device    gpucore.Device
	maxQubits int
	workers   int
	memoryMB  int
	interning bool
	logger    *slog.Logger
}

func defaultOptions() engineOptions {
	return engineOptions{
		maxQubits: bits.MaxQubits,
		interning: true,
	}
}

// WithDevice evaluates on d instead of the automatically selected device.
// The engine does not close d.
func WithDevice(d gpucore.Device) EngineOption {
	return func(o *engineOptions) {
		o.device = d
	}
}

// WithMaxQubits lowers the largest register the engine accepts. Values
// outside [1, MaxQubits] are ignored.
func WithMaxQubits(n int) EngineOption {
	return func(o *engineOptions) {
		if n >= 1 && n <= bits.MaxQubits {
			o.maxQubits = n
		}
	}
}

// WithWorkers sets the number of goroutines of the software device.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) {
		o.workers = n
	}
}

// WithMemoryBudgetMB sets the buffer budget of the software device.
func WithMemoryBudgetMB(mb int) EngineOption {
	return func(o *engineOptions) {
		o.memoryMB = mb
	}
}

// WithInterning enables or disables sharing of structurally equal kernel
// nodes. Enabled by default.
func WithInterning(enabled bool) EngineOption {
	return func(o *engineOptions) {
		o.interning = enabled
	}
}

// WithLogger logs the engine's activity to l instead of the package logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}
