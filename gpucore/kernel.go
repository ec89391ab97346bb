package gpucore

import (
	"fmt"

	"github.com/gogpu/qsim/internal/bits"
)

// Kernel identifies one per-element kernel of the state-vector library.
//
// Every kernel computes output[k] = f(k, inputs, params) independently for each
// output cell k, so devices are free to evaluate cells in any order.
type Kernel uint32

// Kernels.
const (
	// KernelFill writes Coefs[0:4] into every cell.
	KernelFill Kernel = iota + 1

	// KernelPassthrough copies Inputs[0].
	KernelPassthrough

	// KernelClassicalState writes (1,0,0,0) at cell Params[0] and zero elsewhere.
	KernelClassicalState

	// KernelLinearOverlay copies Inputs[1] (foreground) over Inputs[0]
	// (background) starting at cell Params[0]; Params[1] is the foreground
	// length. Cells are selected, never blended.
	KernelLinearOverlay

	// KernelControlMask writes 1 in the R channel of cells matching the
	// control (Params[0] used, Params[1] desired) and 0 elsewhere.
	KernelControlMask

	// KernelControlSelect compacts the cells of Inputs[0] that match the
	// control (Params[0] used, Params[1] desired, Params[2] span) into a
	// smaller contiguous buffer.
	KernelControlSelect

	// KernelControlScatter is the inverse of KernelControlSelect: cells
	// matching the control read Inputs[1] at their compacted index, the
	// others copy Inputs[0].
	KernelControlScatter

	// KernelQubitOperation applies the 2x2 complex matrix in Coefs to bit
	// Params[0] of every index.
	KernelQubitOperation

	// KernelPermute re-indexes the Params[1] bits starting at bit Params[0]
	// using the permutation selected by Params[2] (see PermuteMode).
	KernelPermute

	// KernelQubitDensities writes the unfolded single-qubit density matrix
	// contributions {a, Re b, Im b, d} for the qubits in Params[0]; Params[1]
	// is the number of index bits reserved for the kept qubit number.
	KernelQubitDensities

	// KernelFoldHalves adds the upper half of Inputs[0] onto the lower half.
	KernelFoldHalves

	// KernelControlledProbabilities writes partial sums of the probabilities
	// a qubit needs to be conditioned on a control (Params[0] used,
	// Params[1] desired, Params[2] span): {all, qubit at its desired value,
	// control satisfied, control with the qubit's term toggled}. Params[3]
	// index bits are reserved for the qubit number, and each output cell
	// sums that many bits' worth of input cells.
	KernelControlledProbabilities
)

// LastKernel is the highest defined kernel.
const LastKernel = KernelControlledProbabilities

// String returns the kernel name.
func (k Kernel) String() string {
	switch k {
	case KernelFill:
		return "fill"
	case KernelPassthrough:
		return "passthrough"
	case KernelClassicalState:
		return "classical_state"
	case KernelLinearOverlay:
		return "linear_overlay"
	case KernelControlMask:
		return "control_mask"
	case KernelControlSelect:
		return "control_select"
	case KernelControlScatter:
		return "control_scatter"
	case KernelQubitOperation:
		return "qubit_operation"
	case KernelPermute:
		return "permute"
	case KernelQubitDensities:
		return "qubit_densities"
	case KernelFoldHalves:
		return "fold_halves"
	case KernelControlledProbabilities:
		return "controlled_probabilities"
	default:
		return fmt.Sprintf("Kernel(%d)", uint32(k))
	}
}

// Inputs returns the number of input buffers the kernel reads.
func (k Kernel) Inputs() int {
	switch k {
	case KernelFill, KernelClassicalState, KernelControlMask:
		return 0
	case KernelLinearOverlay, KernelControlScatter:
		return 2
	default:
		return 1
	}
}

// PermuteMode selects the index permutation used by KernelPermute.
type PermuteMode int32

// Permutation modes.
const (
	// PermSwap exchanges the lowest and highest bit of the span.
	PermSwap PermuteMode = iota

	// PermOffset adds Params[3] to the span value, modulo 2^span.
	PermOffset
)

// Sizes of the uniform blocks passed with every call.
const (
	MaxParams = 8
	MaxCoefs  = 8
)

// KernelCall is a fully configured kernel invocation. The output buffer has
// Width x Height cells and is always freshly allocated by the device.
type KernelCall struct {
	Kernel Kernel
	Width  int
	Height int
	Inputs []Buffer
	Params [MaxParams]int32
	Coefs  [MaxCoefs]float32
}

// Len returns the number of output cells.
func (c KernelCall) Len() int {
	return c.Width * c.Height
}

// Validate checks the call shape before it is handed to a device.
func (c KernelCall) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("gpucore: %s: invalid output size %dx%d", c.Kernel, c.Width, c.Height)
	}
	if want := c.Kernel.Inputs(); len(c.Inputs) != want {
		return fmt.Errorf("gpucore: %s: got %d inputs, want %d", c.Kernel, len(c.Inputs), want)
	}
	for i, in := range c.Inputs {
		if !in.IsValid() {
			return fmt.Errorf("gpucore: %s: input %d is not a valid buffer", c.Kernel, i)
		}
	}
	return nil
}

// Kernel catalogue
//
// The constructors below configure calls; they assume arguments were already
// validated by the caller (control masks well formed, bit positions in range).

// Fill returns a call writing the same cell value everywhere.
func Fill(width, height int, r, g, b, a float32) KernelCall {
	c := KernelCall{Kernel: KernelFill, Width: width, Height: height}
	c.Coefs[0], c.Coefs[1], c.Coefs[2], c.Coefs[3] = r, g, b, a
	return c
}

// Passthrough returns a call copying in.
func Passthrough(in Buffer) KernelCall {
	return KernelCall{Kernel: KernelPassthrough, Width: in.Width, Height: in.Height, Inputs: []Buffer{in}}
}

// ClassicalState returns a call rendering the basis state |state>.
func ClassicalState(width, height int, state uint32) KernelCall {
	c := KernelCall{Kernel: KernelClassicalState, Width: width, Height: height}
	c.Params[0] = int32(state) //nolint:gosec // state < 1<<MaxQubits
	return c
}

// LinearOverlay returns a call scanning fore linearly into back at offset.
func LinearOverlay(offset int, fore, back Buffer) KernelCall {
	c := KernelCall{
		Kernel: KernelLinearOverlay,
		Width:  back.Width,
		Height: back.Height,
		Inputs: []Buffer{back, fore},
	}
	c.Params[0] = int32(offset)     //nolint:gosec // offsets are cell indices
	c.Params[1] = int32(fore.Len()) //nolint:gosec // lengths are cell counts
	return c
}

// ControlMask returns a call rendering 1 where the control is satisfied.
// Without used bits the mask is the constant one.
func ControlMask(width, height int, used, desired uint32) KernelCall {
	if used == 0 {
		return Fill(width, height, 1, 0, 0, 0)
	}
	c := KernelCall{Kernel: KernelControlMask, Width: width, Height: height}
	c.Params[0] = int32(used)               //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[1] = int32(desired)            //nolint:gosec // masks stay below 1<<MaxQubits
	return c
}

// ControlSelect returns a call compacting the cells of data matching the
// control. data holds 1<<span cells. Without used bits it is a passthrough.
func ControlSelect(data Buffer, used, desired uint32, span int) KernelCall {
	if used == 0 {
		return Passthrough(data)
	}
	w, h := ShapeForPower(span - bits.OnesCount(used))
	c := KernelCall{Kernel: KernelControlSelect, Width: w, Height: h, Inputs: []Buffer{data}}
	c.Params[0] = int32(used)               //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[1] = int32(desired)            //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[2] = int32(span)               //nolint:gosec // span <= MaxQubits
	return c
}

// ControlScatter returns a call writing the compacted fore back into the
// matching cells of back.
func ControlScatter(fore, back Buffer, used, desired uint32, span int) KernelCall {
	c := KernelCall{
		Kernel: KernelControlScatter,
		Width:  back.Width,
		Height: back.Height,
		Inputs: []Buffer{back, fore},
	}
	c.Params[0] = int32(used)               //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[1] = int32(desired)            //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[2] = int32(span)               //nolint:gosec // span <= MaxQubits
	return c
}

// QubitOperation returns a call applying the row-major 2x2 matrix m to bit.
func QubitOperation(data Buffer, bit int, m [4]complex128) KernelCall {
	c := KernelCall{Kernel: KernelQubitOperation, Width: data.Width, Height: data.Height, Inputs: []Buffer{data}}
	c.Params[0] = int32(bit) //nolint:gosec // bit < MaxQubits
	for i, v := range m {
		c.Coefs[2*i] = float32(real(v))
		c.Coefs[2*i+1] = float32(imag(v))
	}
	return c
}

// Permute returns a call re-indexing the span bits starting at offset.
func Permute(data Buffer, offset, span int, mode PermuteMode, amount int) KernelCall {
	c := KernelCall{Kernel: KernelPermute, Width: data.Width, Height: data.Height, Inputs: []Buffer{data}}
	c.Params[0] = int32(offset) //nolint:gosec // offset < MaxQubits
	c.Params[1] = int32(span)   //nolint:gosec // span <= MaxQubits
	c.Params[2] = int32(mode)
	c.Params[3] = int32(amount) //nolint:gosec // callers reduce amount modulo 2^span
	return c
}

// QubitDensities returns a call computing the unfolded marginal densities of
// the qubits in keptMask for a state of 1<<span cells. The output holds
// 1<<(span-1+keptCount) cells laid out as otherBits<<keptCount | qubitNumber.
func QubitDensities(data Buffer, keptMask uint32, span int) KernelCall {
	keptCount := bits.CeilLg2(bits.OnesCount(keptMask))
	w, h := ShapeForPower(span - 1 + keptCount)
	c := KernelCall{Kernel: KernelQubitDensities, Width: w, Height: h, Inputs: []Buffer{data}}
	c.Params[0] = int32(keptMask)  //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[1] = int32(keptCount) //nolint:gosec // keptCount <= 5
	return c
}

// FoldHalves returns a call summing the two halves of data.
func FoldHalves(data Buffer) KernelCall {
	w, h := ShapeForPower(bits.CeilLg2(data.Len()) - 1)
	return KernelCall{Kernel: KernelFoldHalves, Width: w, Height: h, Inputs: []Buffer{data}}
}

// ControlledProbabilities returns a call computing the unfolded controlled
// probabilities of every qubit of a 1<<span cell state. The output has the
// shape of data, laid out as block<<qubitBits | qubit with
// qubitBits = CeilLg2(span). Cells of qubit numbers >= span are zero.
func ControlledProbabilities(data Buffer, used, desired uint32, span int) KernelCall {
	c := KernelCall{
		Kernel: KernelControlledProbabilities,
		Width:  data.Width,
		Height: data.Height,
		Inputs: []Buffer{data},
	}
	c.Params[0] = int32(used)               //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[1] = int32(desired)            //nolint:gosec // masks stay below 1<<MaxQubits
	c.Params[2] = int32(span)               //nolint:gosec // span <= MaxQubits
	c.Params[3] = int32(bits.CeilLg2(span)) //nolint:gosec // at most 5
	return c
}
