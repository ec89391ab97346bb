package qsim

import (
	"context"
	"fmt"
	"math"

	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/pipeline"
)

// Lazy is a deferred host value. The zero Lazy is not usable.
type Lazy[T any] struct {
	engine *Engine
	node   pipeline.NodeID
}

// Compute evaluates the value. Every call runs the graph again; results are
// not cached.
func (l Lazy[T]) Compute(ctx context.Context) (T, error) {
	var zero T
	if l.engine == nil {
		return zero, fmt.Errorf("%w: zero Lazy", ErrEngineMismatch)
	}
	out, err := l.engine.run(ctx, []pipeline.NodeID{l.node})
	if err != nil {
		return zero, err
	}
	return out[0].(T), nil //nolint:errcheck // host nodes are built with T
}

// ComputeAll evaluates several values of one engine in a single run, so
// shared ancestors (such as a merged read atlas) are evaluated once.
func ComputeAll[T any](ctx context.Context, lazies []Lazy[T]) ([]T, error) {
	if len(lazies) == 0 {
		return nil, nil
	}
	e := lazies[0].engine
	targets := make([]pipeline.NodeID, len(lazies))
	for i, l := range lazies {
		if l.engine == nil || l.engine != e {
			return nil, ErrEngineMismatch
		}
		targets[i] = l.node
	}
	out, err := e.run(ctx, targets)
	if err != nil {
		return nil, err
	}
	values := make([]T, len(out))
	for i, v := range out {
		values[i] = v.(T) //nolint:errcheck // host nodes are built with T
	}
	return values, nil
}

// Read is a lazy read of one state. Its accessors return Lazy values over
// the same readback, so computing several of them together reads the device
// once.
type Read struct {
	engine *Engine
	raw    pipeline.NodeID // host node producing exactly 1<<qubits cells
	qubits int
}

// QubitCount returns the register size of the read state.
func (r *Read) QubitCount() int {
	return r.qubits
}

func (r *Read) derived(label string, fn func(cells []float32) (any, error)) pipeline.NodeID {
	return r.engine.graph.AddHost(label, func(in []any) (any, error) {
		return fn(in[0].([]float32))
	}, r.raw)
}

// Raw returns the cells as stored on the device: four float32 values per
// amplitude, (re, im) followed by two unused channels.
func (r *Read) Raw() Lazy[[]float32] {
	return Lazy[[]float32]{engine: r.engine, node: r.raw}
}

// Amplitudes returns the amplitudes as stored.
func (r *Read) Amplitudes() Lazy[[]complex64] {
	id := r.derived("amplitudes", func(cells []float32) (any, error) {
		return amplitudes(cells), nil
	})
	return Lazy[[]complex64]{engine: r.engine, node: id}
}

// RenormalizedAmplitudes returns the amplitudes scaled to unit norm.
// A zero-norm state yields NaN amplitudes.
func (r *Read) RenormalizedAmplitudes() Lazy[[]complex64] {
	id := r.derived("renormalized", func(cells []float32) (any, error) {
		amps := amplitudes(cells)
		var norm float64
		for _, a := range amps {
			norm += float64(real(a))*float64(real(a)) + float64(imag(a))*float64(imag(a))
		}
		if norm == 0 {
			nan := float32(math.NaN())
			for i := range amps {
				amps[i] = complex(nan, nan)
			}
			return amps, nil
		}
		scale := 1 / math.Sqrt(norm)
		for i, a := range amps {
			amps[i] = complex(float32(float64(real(a))*scale), float32(float64(imag(a))*scale))
		}
		return amps, nil
	})
	return Lazy[[]complex64]{engine: r.engine, node: id}
}

// Probabilities returns |amplitude|^2 per basis state, unnormalized.
func (r *Read) Probabilities() Lazy[[]float32] {
	id := r.derived("probabilities", func(cells []float32) (any, error) {
		out := make([]float32, len(cells)/gpucore.Channels)
		for i := range out {
			re, im := cells[i*gpucore.Channels], cells[i*gpucore.Channels+1]
			out[i] = re*re + im*im
		}
		return out, nil
	})
	return Lazy[[]float32]{engine: r.engine, node: id}
}

func amplitudes(cells []float32) []complex64 {
	out := make([]complex64, len(cells)/gpucore.Channels)
	for i := range out {
		out[i] = complex(cells[i*gpucore.Channels], cells[i*gpucore.Channels+1])
	}
	return out
}

// MergedRead returns reads of several states that share one device readback.
// The states are packed into a single atlas buffer (see PlanPacking), read
// back once, and sliced on the host.
func (e *Engine) MergedRead(states ...*State) ([]*Read, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: merged read of no states", ErrInvalidShape)
	}
	for _, s := range states {
		if err := e.owns(s); err != nil {
			return nil, err
		}
	}
	if len(states) == 1 {
		return []*Read{states[0].Read()}, nil
	}

	g := e.graph
	requests := make([]PackRequest[int], len(states))
	for i, s := range states {
		shape := g.Shape(s.node)
		requests[i] = PackRequest[int]{Key: i, Width: shape.Width, Height: shape.Height}
	}
	plan := PlanPacking(requests)

	atlas := g.AddKernel("atlas", gpucore.Fill(plan.Width, plan.Height, 0, 0, 0, 0))
	for i, s := range states {
		call := gpucore.LinearOverlay(plan.Offsets[i], g.Shape(s.node), g.Shape(atlas))
		atlas = g.AddKernel("atlas_overlay", call, atlas, s.node)
	}
	readback := g.AddReadback(atlas)

	reads := make([]*Read, len(states))
	for i, s := range states {
		lo := plan.Offsets[i] * gpucore.Channels
		hi := lo + s.Len()*gpucore.Channels
		slice := g.AddHost("atlas_slice", func(in []any) (any, error) {
			cells := in[0].([]float32)
			out := make([]float32, hi-lo)
			copy(out, cells[lo:hi])
			return out, nil
		}, readback)
		reads[i] = &Read{engine: e, raw: slice, qubits: s.qubits}
	}
	e.log().Debug("merged read planned",
		"states", len(states),
		"atlas_width", plan.Width,
		"atlas_height", plan.Height)
	return reads, nil
}
