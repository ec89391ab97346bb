// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/naga"

	"github.com/gogpu/qsim/gpucore"
)

// Embedded WGSL shader sources. Each kernel source is compiled together with
// the shared declarations in common.wgsl.

//go:embed shaders/common.wgsl
var commonShaderSource string

//go:embed shaders/fill.wgsl
var fillShaderSource string

//go:embed shaders/passthrough.wgsl
var passthroughShaderSource string

//go:embed shaders/classical_state.wgsl
var classicalStateShaderSource string

//go:embed shaders/linear_overlay.wgsl
var linearOverlayShaderSource string

//go:embed shaders/control_mask.wgsl
var controlMaskShaderSource string

//go:embed shaders/control_select.wgsl
var controlSelectShaderSource string

//go:embed shaders/control_scatter.wgsl
var controlScatterShaderSource string

//go:embed shaders/qubit_operation.wgsl
var qubitOperationShaderSource string

//go:embed shaders/permute.wgsl
var permuteShaderSource string

//go:embed shaders/qubit_densities.wgsl
var qubitDensitiesShaderSource string

//go:embed shaders/fold_halves.wgsl
var foldHalvesShaderSource string

//go:embed shaders/controlled_probabilities.wgsl
var controlledProbabilitiesShaderSource string

var kernelSources = map[gpucore.Kernel]string{
	gpucore.KernelFill:           fillShaderSource,
	gpucore.KernelPassthrough:    passthroughShaderSource,
	gpucore.KernelClassicalState: classicalStateShaderSource,
	gpucore.KernelLinearOverlay:  linearOverlayShaderSource,
	gpucore.KernelControlMask:    controlMaskShaderSource,
	gpucore.KernelControlSelect:  controlSelectShaderSource,
	gpucore.KernelControlScatter: controlScatterShaderSource,
	gpucore.KernelQubitOperation: qubitOperationShaderSource,
	gpucore.KernelPermute:        permuteShaderSource,
	gpucore.KernelQubitDensities: qubitDensitiesShaderSource,
	gpucore.KernelFoldHalves:     foldHalvesShaderSource,

	gpucore.KernelControlledProbabilities: controlledProbabilitiesShaderSource,
}

// Kernels returns the kernels with a WGSL implementation, in kernel order.
func Kernels() []gpucore.Kernel {
	out := make([]gpucore.Kernel, 0, len(kernelSources))
	for k := gpucore.KernelFill; k <= gpucore.LastKernel; k++ {
		if _, ok := kernelSources[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// KernelSource returns the complete WGSL module for k.
func KernelSource(k gpucore.Kernel) (string, error) {
	body, ok := kernelSources[k]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKernel, k)
	}
	return commonShaderSource + "\n" + body, nil
}

// CompileKernel translates the WGSL module of k to SPIR-V.
func CompileKernel(k gpucore.Kernel) ([]byte, error) {
	src, err := KernelSource(k)
	if err != nil {
		return nil, err
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile %s: %w", k, err)
	}
	return spirv, nil
}

// Uniform block layout, matching struct Call in common.wgsl.
const (
	workgroupSize   = 256
	maxGroupsPerRow = 32768
	uniformSize     = 80
)

// dispatchGrid returns the workgroup counts covering n cells and the number
// of invocations per grid row.
func dispatchGrid(n int) (x, y, rowStride uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups == 0 {
		groups = 1
	}
	gx := min(groups, maxGroupsPerRow)
	gy := (groups + gx - 1) / gx
	return uint32(gx), uint32(gy), uint32(gx * workgroupSize) //nolint:gosec // bounded by MaxBufferCells
}

// packUniform serializes the call parameters into the uniform block.
func packUniform(call *gpucore.KernelCall, rowStride uint32) []byte {
	buf := make([]byte, uniformSize)
	for i, p := range call.Params {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(p)) //nolint:gosec // bit pattern preserved
	}
	for i, c := range call.Coefs {
		binary.LittleEndian.PutUint32(buf[32+i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[64:], uint32(call.Len())) //nolint:gosec // bounded by MaxBufferCells
	binary.LittleEndian.PutUint32(buf[68:], rowStride)
	return buf
}

func cellsToBytes(cells []float32) []byte {
	out := make([]byte, len(cells)*4)
	for i, v := range cells {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToCells(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
