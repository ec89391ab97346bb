package qsim

import (
	"fmt"
	"math"

	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
)

// Density is the reduced density matrix of one qubit:
//
//	| A              BRe - i BIm |
//	| BRe + i BIm    D           |
//
// (BRe, BIm) is conj(w0)*w1 summed over the other qubits, where w0 and w1
// are the amplitudes with the qubit off and on.
type Density struct {
	A, BRe, BIm, D float32
}

// Probability returns the probability that the qubit is on.
func (d Density) Probability() float64 {
	return float64(d.D)
}

// BlochVector returns the qubit's Bloch vector (x, y, z).
func (d Density) BlochVector() (x, y, z float64) {
	return 2 * float64(d.BRe), 2 * float64(d.BIm), float64(d.A - d.D)
}

// QubitDensities returns the single-qubit reduced density matrices of the
// qubits in kept, ordered by ascending qubit index. Each matrix is divided by
// the state's squared norm; a zero-norm state yields NaN entries.
func (s *State) QubitDensities(kept uint32) (Lazy[[]Density], error) {
	if kept == 0 {
		return Lazy[[]Density]{}, fmt.Errorf("%w: no qubits kept", ErrInvalidMask)
	}
	if s.qubits == 0 || kept&^bits.SpanMask(s.qubits) != 0 {
		return Lazy[[]Density]{}, fmt.Errorf("%w: kept qubits %#b outside %d-qubit state", ErrOutOfRange, kept, s.qubits)
	}

	g := s.engine.graph
	node := g.AddKernel("qubit_densities", gpucore.QubitDensities(g.Shape(s.node), kept, s.qubits), s.node)

	// Sum the contributions over the other qubits, which occupy the high
	// index bits, until one cell per reserved qubit slot is left.
	slots := 1 << bits.CeilLg2(bits.OnesCount(kept))
	for g.Shape(node).Len() > slots {
		node = g.AddKernel("fold_halves", gpucore.FoldHalves(g.Shape(node)), node)
	}

	count := bits.OnesCount(kept)
	id := g.AddHost("densities", func(in []any) (any, error) {
		return normalizeDensities(in[0].([]float32), count), nil
	}, g.AddReadback(node))
	return Lazy[[]Density]{engine: s.engine, node: id}, nil
}

func normalizeDensities(cells []float32, count int) []Density {
	out := make([]Density, count)
	for i := range out {
		c := cells[i*gpucore.Channels : (i+1)*gpucore.Channels]
		trace := c[0] + c[3]
		if trace == 0 {
			nan := float32(math.NaN())
			out[i] = Density{nan, nan, nan, nan}
			continue
		}
		out[i] = Density{A: c[0] / trace, BRe: c[1] / trace, BIm: c[2] / trace, D: c[3] / trace}
	}
	return out
}

// ControlledProbability holds the weights that condition one qubit on a
// control mask. Weights are sums of squared amplitude magnitudes and are not
// normalized.
type ControlledProbability struct {
	// Total is the squared norm of the state.
	Total float32

	// Matching weighs the states where the qubit holds its desired value:
	// the control value if the qubit is controlled, off otherwise.
	Matching float32

	// Controlled weighs the states satisfying the mask.
	Controlled float32

	// Toggled weighs the states satisfying the mask with the qubit's term
	// toggled: dropped if the qubit is controlled, required off otherwise.
	Toggled float32

	// On is the probability that the qubit is on given that the mask is
	// satisfied. It is NaN when no state satisfies the mask.
	On float32
}

// ControlledProbabilities returns, for every qubit, the weights needed to
// condition it on controls, ordered by qubit index.
func (s *State) ControlledProbabilities(controls ControlMask) (Lazy[[]ControlledProbability], error) {
	if err := controls.Validate(s.qubits); err != nil {
		return Lazy[[]ControlledProbability]{}, err
	}

	g := s.engine.graph
	node := g.AddKernel("controlled_probabilities",
		gpucore.ControlledProbabilities(g.Shape(s.node), controls.Used, controls.Desired, s.qubits), s.node)
	slots := 1 << bits.CeilLg2(s.qubits)
	for g.Shape(node).Len() > slots {
		node = g.AddKernel("fold_halves", gpucore.FoldHalves(g.Shape(node)), node)
	}

	qubits := s.qubits
	id := g.AddHost("controlled_probabilities", func(in []any) (any, error) {
		return conditionQubits(in[0].([]float32), qubits, controls), nil
	}, g.AddReadback(node))
	return Lazy[[]ControlledProbability]{engine: s.engine, node: id}, nil
}

func conditionQubits(cells []float32, qubits int, controls ControlMask) []ControlledProbability {
	out := make([]ControlledProbability, qubits)
	for q := range out {
		c := cells[q*gpucore.Channels : (q+1)*gpucore.Channels]
		p := ControlledProbability{Total: c[0], Matching: c[1], Controlled: c[2], Toggled: c[3]}
		bit := uint32(1) << q
		switch {
		case p.Controlled == 0:
			p.On = float32(math.NaN())
		case controls.Used&bit == 0:
			p.On = (p.Controlled - p.Toggled) / p.Controlled
		case controls.Desired&bit != 0:
			p.On = 1
		}
		out[q] = p
	}
	return out
}
