// Package qsim simulates quantum circuits on state vectors stored in GPU
// buffers.
//
// # Overview
//
// A register of n qubits is held as 2^n complex amplitudes, one per cell of
// a float32 RGBA buffer. Operations never touch the device directly: each
// one adds a node to a deferred computation graph, and only materializing a
// read (Lazy.Compute or ComputeAll) evaluates the nodes it depends on.
//
// # Quick Start
//
//	import "github.com/gogpu/qsim"
//
//	e, err := qsim.NewEngine()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer e.Close()
//
//	// Bell pair: H on q0, then X on q1 controlled by q0.
//	s, _ := e.FromClassicalState(0, 2)
//	s, _ = s.WithGateApplied(0, qsim.Hadamard(), qsim.NoControls)
//	s, _ = s.WithGateApplied(1, qsim.PauliX(), qsim.ControlBitIs(0, true))
//
//	amps, err := s.Read().Amplitudes().Compute(ctx)
//
// # Controls
//
// A ControlMask restricts an operation to the basis states whose used bits
// hold the desired values. Controlled operations are evaluated on the
// compacted subspace of matching states and merged back into the full state,
// so their cost scales with the subspace and not the register.
//
// # Reads
//
// Engine.MergedRead packs several states into one atlas buffer so they are
// read back with a single device synchronization. Values derived from the
// same read share its readback when computed together.
//
// # Devices
//
// The engine runs on a software device by default. Importing the gpu
// package registers a wgpu compute device that engines pick up
// automatically:
//
//	import _ "github.com/gogpu/qsim/gpu"
//
// Both devices store identical cell layouts, so results do not depend on
// where they were computed beyond float32 rounding.
package qsim
