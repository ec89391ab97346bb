// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import "errors"

// Device errors.
var (
	// ErrDeviceNotReady is returned when the device has no GPU, either
	// because Init failed or after Close.
	ErrDeviceNotReady = errors.New("wgpu: device not ready")

	// ErrUnsupportedKernel is returned for a kernel without a WGSL module.
	ErrUnsupportedKernel = errors.New("wgpu: unsupported kernel")

	// ErrUnknownBuffer is returned for a buffer this device did not create.
	ErrUnknownBuffer = errors.New("wgpu: unknown buffer")

	// ErrBufferTooLarge is returned for buffers beyond MaxBufferCells.
	ErrBufferTooLarge = errors.New("wgpu: buffer exceeds storage binding limit")
)
