package qsim

import (
	"errors"

	"github.com/gogpu/qsim/pipeline"
)

// Errors returned by state construction and evaluation.
//
// Shape, range and mask errors are returned by the call that introduces the
// bad value, before any node is added to the graph. Device failures only
// surface from Compute and ComputeAll.
var (
	// ErrInvalidShape reports an empty or non power-of-two amplitude list,
	// or an empty merged read.
	ErrInvalidShape = errors.New("qsim: invalid shape")

	// ErrOutOfRange reports a classical value outside its register, or a
	// qubit index outside the state or beyond the engine limit.
	ErrOutOfRange = errors.New("qsim: out of range")

	// ErrInvalidMask reports desired bits outside used bits, used bits
	// beyond the state, or controls overlapping the operated qubits.
	ErrInvalidMask = errors.New("qsim: invalid control mask")

	// ErrDeviceFailure reports a device error during evaluation. The whole
	// batch fails and is not retried.
	ErrDeviceFailure = pipeline.ErrDeviceFailure

	// ErrEngineMismatch reports states or reads from different engines used
	// in one operation.
	ErrEngineMismatch = errors.New("qsim: values belong to different engines")
)
