// Package gpucore provides the device abstraction and kernel catalogue shared
// by every qsim backend.
//
// This package defines the [Device] interface, which abstracts over the
// implementations that hold state buffers and evaluate kernels:
//   - backend/wgpu (WGSL compute shaders via wgpu/hal)
//   - backend/cpu (software evaluation, always available)
//
// # Architecture
//
//	               +------------------+
//	               |  qsim pipeline   |
//	               | (deferred graph) |
//	               +--------+---------+
//	                        |  KernelCall
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|   backend/wgpu  |          |   backend/cpu   |
//	|  (hal.Device)   |          |  (WorkerPool)   |
//	+-----------------+          +-----------------+
//
// # Buffers
//
// A [Buffer] holds 1<<p cells of four float32 channels laid out as a
// Width x Height grid (see [ShapeForPower]). Amplitudes occupy the R and G
// channels. Buffers are never written after the call that produced them.
//
// # Kernels
//
// Kernels are configured through the catalogue constructors ([ClassicalState],
// [ControlSelect], [QubitOperation], ...) which fill a [KernelCall]. A call
// carries up to [MaxParams] integer parameters and [MaxCoefs] float
// coefficients, matching the 64-byte uniform block of the WGSL shaders.
package gpucore
