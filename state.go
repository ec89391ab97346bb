package qsim

import (
	"fmt"

	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
	"github.com/gogpu/qsim/pipeline"
)

// State is an immutable, lazily evaluated quantum state of a register.
//
// Each transformation returns a new State and leaves the receiver usable;
// nothing is computed until a read is materialized.
type State struct {
	engine *Engine
	node   pipeline.NodeID
	qubits int
}

// FromAmplitudes returns the state with the given amplitudes. The length
// must be a power of two; amplitudes are not normalized.
func (e *Engine) FromAmplitudes(amps []complex128) (*State, error) {
	if len(amps) == 0 {
		return nil, fmt.Errorf("%w: empty amplitude list", ErrInvalidShape)
	}
	if !bits.IsPowerOfTwo(len(amps)) {
		return nil, fmt.Errorf("%w: %d amplitudes is not a power of two", ErrInvalidShape, len(amps))
	}
	qubits := bits.CeilLg2(len(amps))
	if qubits > e.maxQubits {
		return nil, fmt.Errorf("%w: %d qubits exceeds limit %d", ErrOutOfRange, qubits, e.maxQubits)
	}

	w, h := gpucore.ShapeForPower(qubits)
	cells := make([]float32, len(amps)*gpucore.Channels)
	for i, a := range amps {
		cells[i*gpucore.Channels] = float32(real(a))
		cells[i*gpucore.Channels+1] = float32(imag(a))
	}
	id := e.graph.AddSource("amplitudes", w, h, cells)
	return &State{engine: e, node: id, qubits: qubits}, nil
}

// FromClassicalState returns the basis state |value> of a register of
// qubitCount qubits.
func (e *Engine) FromClassicalState(value, qubitCount int) (*State, error) {
	if qubitCount < 0 || qubitCount > e.maxQubits {
		return nil, fmt.Errorf("%w: %d qubits (limit %d)", ErrOutOfRange, qubitCount, e.maxQubits)
	}
	if value < 0 || value >= 1<<qubitCount {
		return nil, fmt.Errorf("%w: value %d does not fit %d qubits", ErrOutOfRange, value, qubitCount)
	}
	w, h := gpucore.ShapeForPower(qubitCount)
	id := e.graph.AddKernel("classical", gpucore.ClassicalState(w, h, uint32(value))) //nolint:gosec // checked above
	return &State{engine: e, node: id, qubits: qubitCount}, nil
}

// QubitCount returns the register size.
func (s *State) QubitCount() int {
	return s.qubits
}

// Len returns the number of amplitudes.
func (s *State) Len() int {
	return 1 << s.qubits
}

func (s *State) derive(node pipeline.NodeID) *State {
	return &State{engine: s.engine, node: node, qubits: s.qubits}
}

func (s *State) checkQubit(name string, q int) error {
	if q < 0 || q >= s.qubits {
		return fmt.Errorf("%w: %s qubit %d outside %d-qubit state", ErrOutOfRange, name, q, s.qubits)
	}
	return nil
}

// controlled builds op on the subspace selected by controls and writes the
// result back over the unselected amplitudes.
//
// op receives the compacted input node and the compacted qubit count, and
// must return a node of the same shape.
func (s *State) controlled(controls ControlMask, op func(in pipeline.NodeID, span int) pipeline.NodeID) *State {
	g := s.engine.graph
	if controls.IsNone() {
		return s.derive(op(s.node, s.qubits))
	}

	used, desired := controls.Used, controls.Desired
	sel := g.AddKernel("control_select", gpucore.ControlSelect(g.Shape(s.node), used, desired, s.qubits), s.node)
	applied := op(sel, s.qubits-bits.OnesCount(used))

	var restored pipeline.NodeID
	if bits.IsContiguousHigh(used, s.qubits) {
		call := gpucore.LinearOverlay(int(desired), g.Shape(applied), g.Shape(s.node))
		restored = g.AddKernel("overlay", call, s.node, applied)
	} else {
		call := gpucore.ControlScatter(g.Shape(applied), g.Shape(s.node), used, desired, s.qubits)
		restored = g.AddKernel("control_scatter", call, s.node, applied)
	}
	return s.derive(restored)
}

// WithGateApplied returns the state with m applied to target wherever
// controls match. Controls must not include the target.
func (s *State) WithGateApplied(target int, m Matrix2, controls ControlMask) (*State, error) {
	if err := s.checkQubit("target", target); err != nil {
		return nil, err
	}
	if err := controls.Validate(s.qubits); err != nil {
		return nil, err
	}
	if controls.Used&(1<<target) != 0 {
		return nil, fmt.Errorf("%w: target qubit %d is also a control", ErrInvalidMask, target)
	}

	g := s.engine.graph
	bit := bits.CompactIndex(target, controls.Used)
	return s.controlled(controls, func(in pipeline.NodeID, _ int) pipeline.NodeID {
		return g.AddKernel("qubit_operation", gpucore.QubitOperation(g.Shape(in), bit, m), in)
	}), nil
}

// WithSwap returns the state with qubits a and b exchanged wherever controls
// match. Controls must not include a or b.
func (s *State) WithSwap(a, b int, controls ControlMask) (*State, error) {
	if err := s.checkQubit("swap", a); err != nil {
		return nil, err
	}
	if err := s.checkQubit("swap", b); err != nil {
		return nil, err
	}
	if err := controls.Validate(s.qubits); err != nil {
		return nil, err
	}
	if controls.Used&(1<<a|1<<b) != 0 {
		return nil, fmt.Errorf("%w: swapped qubits %d and %d overlap the controls", ErrInvalidMask, a, b)
	}
	if a == b {
		return s.derive(s.node), nil
	}

	g := s.engine.graph
	lo := bits.CompactIndex(min(a, b), controls.Used)
	hi := bits.CompactIndex(max(a, b), controls.Used)
	return s.controlled(controls, func(in pipeline.NodeID, _ int) pipeline.NodeID {
		return g.AddKernel("swap", gpucore.Permute(g.Shape(in), lo, hi-lo+1, gpucore.PermSwap, 0), in)
	}), nil
}

// WithIncrement returns the state with amount added, modulo 2^span, to the
// span qubits starting at offset, wherever controls match. A negative
// amount decrements. Controls must not include the span qubits.
func (s *State) WithIncrement(offset, span, amount int, controls ControlMask) (*State, error) {
	if span < 1 || offset < 0 || offset+span > s.qubits {
		return nil, fmt.Errorf("%w: qubits [%d, %d) outside %d-qubit state", ErrOutOfRange, offset, offset+span, s.qubits)
	}
	if err := controls.Validate(s.qubits); err != nil {
		return nil, err
	}
	if controls.Used&(bits.SpanMask(span)<<offset) != 0 {
		return nil, fmt.Errorf("%w: incremented qubits overlap the controls", ErrInvalidMask)
	}

	modulus := 1 << span
	amount %= modulus
	if amount < 0 {
		amount += modulus
	}
	if amount == 0 {
		return s.derive(s.node), nil
	}

	g := s.engine.graph
	at := bits.CompactIndex(offset, controls.Used)
	return s.controlled(controls, func(in pipeline.NodeID, _ int) pipeline.NodeID {
		return g.AddKernel("increment", gpucore.Permute(g.Shape(in), at, span, gpucore.PermOffset, amount), in)
	}), nil
}

// Read returns a lazy read of the state.
func (s *State) Read() *Read {
	g := s.engine.graph
	return &Read{engine: s.engine, raw: g.AddReadback(s.node), qubits: s.qubits}
}

// ControlMaskBuffer returns, per basis state, 1 where controls match and 0
// elsewhere.
func (s *State) ControlMaskBuffer(controls ControlMask) (Lazy[[]float32], error) {
	if err := controls.Validate(s.qubits); err != nil {
		return Lazy[[]float32]{}, err
	}
	g := s.engine.graph
	w, h := gpucore.ShapeForPower(s.qubits)
	mask := g.AddKernel("control_mask", gpucore.ControlMask(w, h, controls.Used, controls.Desired))
	id := g.AddHost("mask_values", func(in []any) (any, error) {
		return channel(in[0].([]float32), 0), nil
	}, g.AddReadback(mask))
	return Lazy[[]float32]{engine: s.engine, node: id}, nil
}

// channel extracts one channel of every cell.
func channel(cells []float32, c int) []float32 {
	out := make([]float32, len(cells)/gpucore.Channels)
	for i := range out {
		out[i] = cells[i*gpucore.Channels+c]
	}
	return out
}
