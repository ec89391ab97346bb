// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bits implements the index arithmetic shared by every state-vector
// kernel: moving between the compacted index space of a control-selected
// subspace and the full index space of a register.
//
// All bit positions are zero-indexed from the least significant bit. Indices
// never exceed MaxQubits bits, so every value fits a signed 32-bit integer on
// the device side.
package bits

import mathbits "math/bits"

// MaxQubits bounds the number of qubits in a register.
// 1<<MaxQubits cells is a 4096x4096 texture.
const MaxQubits = 24

// SpanMask returns a mask with the low span bits set.
func SpanMask(span int) uint32 {
	if span <= 0 {
		return 0
	}
	return uint32((uint64(1) << uint(span)) - 1) //nolint:gosec // span <= 32
}

// Deposit places the low bits of val, in order, into the set bit positions of
// mask. Bits of val beyond OnesCount(mask) are dropped.
func Deposit(val, mask uint32) uint32 {
	var result uint32
	for m := mask; m != 0; m &= m - 1 {
		if val&1 != 0 {
			result |= m & -m
		}
		val >>= 1
	}
	return result
}

// Extract collects the bits of val found at the set positions of mask into
// the low bits of the result. It is the left inverse of Deposit.
func Extract(val, mask uint32) uint32 {
	var result uint32
	bit := uint32(1)
	for m := mask; m != 0; m &= m - 1 {
		if val&(m&-m) != 0 {
			result |= bit
		}
		bit <<= 1
	}
	return result
}

// Scatter maps index k of the compacted space selected by (used, desired)
// into the full span-bit space: the bits of k fill the unused positions and
// the used positions take their desired values.
func Scatter(k, used, desired uint32, span int) uint32 {
	return Deposit(k, ^used&SpanMask(span)) | desired
}

// Gather maps a full-space index back into the compacted space of a control
// mask. Gather(Scatter(k)) == k for every k below 1<<(span-OnesCount(used)).
func Gather(full, used uint32, span int) uint32 {
	return Extract(full, ^used&SpanMask(span))
}

// Matches reports whether index k satisfies the control condition.
func Matches(k, used, desired uint32) bool {
	return (k^desired)&used == 0
}

// OnesCount returns the number of set bits in x.
func OnesCount(x uint32) int {
	return mathbits.OnesCount32(x)
}

// CompactIndex returns the position that bit occupies once the used bits have
// been squeezed out of the index. The bit itself must not be in used.
func CompactIndex(bit int, used uint32) int {
	return bit - OnesCount(used&SpanMask(bit))
}

// SwapBits exchanges bits a and b of k.
func SwapBits(k uint32, a, b int) uint32 {
	x := (k>>uint(a) ^ k>>uint(b)) & 1 //nolint:gosec // bit positions are small
	return k ^ (x<<uint(a) | x<<uint(b))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// CeilLg2 returns the smallest p with 1<<p >= n. CeilLg2 of values <= 1 is 0.
func CeilLg2(n int) int {
	if n <= 1 {
		return 0
	}
	return mathbits.Len(uint(n - 1)) //nolint:gosec // n > 1
}

// IsContiguousHigh reports whether used occupies exactly the top bits of a
// span-bit index, so that every index matching a control on used lies in one
// contiguous run.
func IsContiguousHigh(used uint32, span int) bool {
	c := OnesCount(used)
	return used == SpanMask(span)&^SpanMask(span-c)
}
