package qsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/qsim/backend/cpu"
	"github.com/gogpu/qsim/cache"
	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/pipeline"
)

// Engine owns a computation graph and the device it is evaluated on.
//
// States, reads and lazy values created by an engine stay valid until the
// engine is closed. Building states never touches the device; only Compute
// and ComputeAll do.
//
// The graph only grows. Every node an engine records, including host
// uploads and each value derived from a Read, is kept until Close, so
// long-running programs should use one engine per circuit batch. Interning
// bounds the growth from rebuilding identical states but not from repeated
// derivations.
//
// Engine is safe for concurrent use.
type Engine struct {
	graph      *pipeline.Graph
	device     gpucore.Device
	ownsDevice bool
	maxQubits  int
	logger     *slog.Logger
	seq        uint64
}

// NewEngine creates an engine.
//
// Without WithDevice the engine uses the registered hardware device when it
// supports compute, and otherwise creates its own software device.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		graph:     pipeline.NewGraph(o.interning),
		device:    o.device,
		maxQubits: o.maxQubits,
		logger:    o.logger,
		seq:       engineSeq.Add(1),
	}
	if e.device == nil {
		if hw := RegisteredDevice(); hw != nil && hw.Capabilities().SupportsCompute {
			e.device = hw
		} else {
			e.device = cpu.New(cpu.Config{Workers: o.workers, MaxMemoryMB: o.memoryMB})
			e.ownsDevice = true
		}
	}
	if !e.device.Capabilities().SupportsCompute {
		return nil, fmt.Errorf("%w: device %q cannot run kernels", ErrDeviceFailure, e.device.Name())
	}

	e.log().Info("engine created",
		"device", e.device.Name(),
		"adapter", e.device.Capabilities().DeviceName,
		"max_qubits", e.maxQubits)
	return e, nil
}

// Close releases the engine's own device. A device passed with WithDevice or
// a registered hardware device is left open.
func (e *Engine) Close() {
	if e.ownsDevice {
		e.device.Close()
	}
}

// Device returns the device the engine evaluates on.
func (e *Engine) Device() gpucore.Device {
	return e.device
}

// MaxQubits returns the largest register the engine accepts.
func (e *Engine) MaxQubits() int {
	return e.maxQubits
}

// EngineStats describes the engine's graph and device.
type EngineStats struct {
	Nodes  int
	Intern cache.Stats
	Device gpucore.Stats
}

// Stats returns graph and device statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Nodes:  e.graph.Len(),
		Intern: e.graph.InternStats(),
		Device: e.device.Stats(),
	}
}

// run evaluates host-valued nodes.
func (e *Engine) run(ctx context.Context, targets []pipeline.NodeID) ([]any, error) {
	out, err := pipeline.NewExecutor(e.graph, e.device, e.log()).Run(ctx, targets)
	if err != nil {
		if errors.Is(err, ErrDeviceFailure) {
			return nil, fmt.Errorf("qsim: compute: %w", err)
		}
		return nil, err
	}
	return out, nil
}

// CreateInitialState returns the basis state |value> of a qubits-wide
// register. It is FromClassicalState under the circuit-facing name.
func (e *Engine) CreateInitialState(value, qubits int) (*State, error) {
	return e.FromClassicalState(value, qubits)
}

// CreateStateFromAmplitudes is FromAmplitudes under the circuit-facing name.
func (e *Engine) CreateStateFromAmplitudes(amps []complex128) (*State, error) {
	return e.FromAmplitudes(amps)
}

// ApplyGate applies m to target where controls match.
func (e *Engine) ApplyGate(s *State, target int, controls ControlMask, m Matrix2) (*State, error) {
	if err := e.owns(s); err != nil {
		return nil, err
	}
	return s.WithGateApplied(target, m, controls)
}

// ApplySwap exchanges qubits a and b where controls match.
func (e *Engine) ApplySwap(s *State, a, b int, controls ControlMask) (*State, error) {
	if err := e.owns(s); err != nil {
		return nil, err
	}
	return s.WithSwap(a, b, controls)
}

// RequestRead returns a lazy read of s.
func (e *Engine) RequestRead(s *State) (*Read, error) {
	if err := e.owns(s); err != nil {
		return nil, err
	}
	return s.Read(), nil
}

func (e *Engine) owns(s *State) error {
	if s == nil || s.engine != e {
		return ErrEngineMismatch
	}
	return nil
}
