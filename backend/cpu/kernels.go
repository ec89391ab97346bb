// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
)

// kernelFunc evaluates output cells [lo, hi) of call. in holds the storage of
// call.Inputs in order.
type kernelFunc func(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int)

var kernelTable = map[gpucore.Kernel]kernelFunc{
	gpucore.KernelFill:           fillCells,
	gpucore.KernelPassthrough:    passthroughCells,
	gpucore.KernelClassicalState: classicalStateCells,
	gpucore.KernelLinearOverlay:  linearOverlayCells,
	gpucore.KernelControlMask:    controlMaskCells,
	gpucore.KernelControlSelect:  controlSelectCells,
	gpucore.KernelControlScatter: controlScatterCells,
	gpucore.KernelQubitOperation: qubitOperationCells,
	gpucore.KernelPermute:        permuteCells,
	gpucore.KernelQubitDensities: qubitDensitiesCells,
	gpucore.KernelFoldHalves:     foldHalvesCells,

	gpucore.KernelControlledProbabilities: controlledProbabilitiesCells,
}

const ch = gpucore.Channels

func copyCell(dst []float32, k int, src []float32, j int) {
	copy(dst[k*ch:k*ch+ch], src[j*ch:j*ch+ch])
}

func setCell(dst []float32, k int, r, g, b, a float32) {
	c := dst[k*ch : k*ch+ch]
	c[0], c[1], c[2], c[3] = r, g, b, a
}

func fillCells(call *gpucore.KernelCall, _ [][]float32, out []float32, lo, hi int) {
	c := call.Coefs
	for k := lo; k < hi; k++ {
		setCell(out, k, c[0], c[1], c[2], c[3])
	}
}

func passthroughCells(_ *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	copy(out[lo*ch:hi*ch], in[0][lo*ch:hi*ch])
}

func classicalStateCells(call *gpucore.KernelCall, _ [][]float32, out []float32, lo, hi int) {
	state := int(call.Params[0])
	for k := lo; k < hi; k++ {
		if k == state {
			setCell(out, k, 1, 0, 0, 0)
		} else {
			setCell(out, k, 0, 0, 0, 0)
		}
	}
}

func linearOverlayCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	back, fore := in[0], in[1]
	offset, n := int(call.Params[0]), int(call.Params[1])
	for k := lo; k < hi; k++ {
		if j := k - offset; j >= 0 && j < n {
			copyCell(out, k, fore, j)
		} else {
			copyCell(out, k, back, k)
		}
	}
}

func controlMaskCells(call *gpucore.KernelCall, _ [][]float32, out []float32, lo, hi int) {
	used, desired := uint32(call.Params[0]), uint32(call.Params[1]) //nolint:gosec // masks are non-negative
	for k := lo; k < hi; k++ {
		var r float32
		if bits.Matches(uint32(k), used, desired) { //nolint:gosec // k < 1<<MaxQubits
			r = 1
		}
		setCell(out, k, r, 0, 0, 0)
	}
}

func controlSelectCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	used, desired := uint32(call.Params[0]), uint32(call.Params[1]) //nolint:gosec // masks are non-negative
	span := int(call.Params[2])
	for k := lo; k < hi; k++ {
		src := bits.Scatter(uint32(k), used, desired, span) //nolint:gosec // k < 1<<MaxQubits
		copyCell(out, k, in[0], int(src))
	}
}

func controlScatterCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	back, fore := in[0], in[1]
	used, desired := uint32(call.Params[0]), uint32(call.Params[1]) //nolint:gosec // masks are non-negative
	span := int(call.Params[2])
	for k := lo; k < hi; k++ {
		u := uint32(k) //nolint:gosec // k < 1<<MaxQubits
		if bits.Matches(u, used, desired) {
			copyCell(out, k, fore, int(bits.Gather(u, used, span)))
		} else {
			copyCell(out, k, back, k)
		}
	}
}

func qubitOperationCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	mask := 1 << int(call.Params[0])
	c := call.Coefs
	m00 := complex(float64(c[0]), float64(c[1]))
	m01 := complex(float64(c[2]), float64(c[3]))
	m10 := complex(float64(c[4]), float64(c[5]))
	m11 := complex(float64(c[6]), float64(c[7]))
	src := in[0]
	for k := lo; k < hi; k++ {
		k0, k1 := k&^mask, k|mask
		v0 := complex(float64(src[k0*ch]), float64(src[k0*ch+1]))
		v1 := complex(float64(src[k1*ch]), float64(src[k1*ch+1]))
		var v complex128
		if k&mask == 0 {
			v = m00*v0 + m01*v1
		} else {
			v = m10*v0 + m11*v1
		}
		setCell(out, k, float32(real(v)), float32(imag(v)), 0, 0)
	}
}

func permuteCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	offset, span := int(call.Params[0]), int(call.Params[1])
	mode := gpucore.PermuteMode(call.Params[2])
	amount := uint32(call.Params[3]) //nolint:gosec // reinterpreted modulo 2^span
	spanMask := bits.SpanMask(span)
	for k := lo; k < hi; k++ {
		u := uint32(k) //nolint:gosec // k < 1<<MaxQubits
		t := (u >> offset) & spanMask
		var s uint32
		switch mode {
		case gpucore.PermSwap:
			s = bits.SwapBits(t, 0, span-1)
		case gpucore.PermOffset:
			s = (t - amount) & spanMask
		default:
			s = t
		}
		src := u&^(spanMask<<offset) | s<<offset
		copyCell(out, k, in[0], int(src))
	}
}

func qubitDensitiesCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	kept := uint32(call.Params[0]) //nolint:gosec // masks are non-negative
	keptCount := int(call.Params[1])
	src := in[0]
	for k := lo; k < hi; k++ {
		u := uint32(k) //nolint:gosec // k < 1<<MaxQubits
		otherBits := u >> keptCount
		bitIndex := u & bits.SpanMask(keptCount)
		bit := bits.Deposit(1<<bitIndex, kept)
		i0 := otherBits&(bit-1) | (otherBits&^(bit-1))<<1
		i1 := i0 | bit

		x1, y1 := src[int(i0)*ch], src[int(i0)*ch+1]
		x2, y2 := src[int(i1)*ch], src[int(i1)*ch+1]
		setCell(out, k,
			x1*x1+y1*y1,
			x1*x2+y1*y2,
			x1*y2-y1*x2,
			x2*x2+y2*y2)
	}
}

func foldHalvesCells(_ *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	half := len(out)
	src := in[0]
	for i := lo * ch; i < hi*ch; i++ {
		out[i] = src[i] + src[i+half]
	}
}

func controlledProbabilitiesCells(call *gpucore.KernelCall, in [][]float32, out []float32, lo, hi int) {
	used := uint32(call.Params[0])    //nolint:gosec // masks are non-negative
	desired := uint32(call.Params[1]) //nolint:gosec // masks are non-negative
	span := int(call.Params[2])
	qubitBits := int(call.Params[3])
	src := in[0]
	for k := lo; k < hi; k++ {
		u := uint32(k) //nolint:gosec // k < 1<<MaxQubits
		q := int(u & bits.SpanMask(qubitBits))
		if q >= span {
			setCell(out, k, 0, 0, 0, 0)
			continue
		}
		bit := uint32(1) << q
		masks := [4]uint32{0, bit, used, bit ^ used}
		var sums [4]float32
		base := u &^ bits.SpanMask(qubitBits)
		for r := range uint32(1) << qubitBits {
			i := base | r
			x, y := src[int(i)*ch], src[int(i)*ch+1]
			p := x*x + y*y
			for c, m := range masks {
				if bits.Matches(i, m, desired) {
					sums[c] += p
				}
			}
		}
		setCell(out, k, sums[0], sums[1], sums[2], sums[3])
	}
}
