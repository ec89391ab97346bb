// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu runs the state-vector kernels as WGSL compute shaders on the
// gogpu/wgpu HAL.
//
// Each buffer is a storage buffer of vec4<f32> cells. A kernel call becomes
// one compute pass with a uniform block holding the call parameters:
//
//	binding 0: uniform Call (params, coefs, output size)
//	binding 1: input 0 (read-only storage)
//	binding 2: input 1 (read-only storage)
//	binding 3: output (storage)
//
// Dispatches are submitted without waiting. Read waits for every submitted
// pass, then copies the buffer through a staging buffer. Resources of
// completed passes and released buffers are destroyed at the next wait.
//
// The device is normally registered through the qsim/gpu package rather
// than used directly.
package wgpu
