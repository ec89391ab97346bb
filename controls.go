package qsim

import (
	"fmt"

	"github.com/gogpu/qsim/internal/bits"
)

// ControlMask restricts an operation to the basis states whose Used bits
// equal the corresponding Desired bits.
//
// Desired must be a subset of Used. The zero value, NoControls, never
// restricts anything.
type ControlMask struct {
	Used    uint32
	Desired uint32
}

// NoControls is the identity control.
var NoControls = ControlMask{}

// NewControlMask returns the mask (used, desired).
func NewControlMask(used, desired uint32) (ControlMask, error) {
	c := ControlMask{Used: used, Desired: desired}
	if err := c.Validate(bits.MaxQubits); err != nil {
		return ControlMask{}, err
	}
	return c, nil
}

// ControlBitIs returns a mask requiring qubit bit to be on (or off).
// It panics if bit is outside [0, MaxQubits).
func ControlBitIs(bit int, on bool) ControlMask {
	if bit < 0 || bit >= bits.MaxQubits {
		panic(fmt.Sprintf("qsim: control bit %d out of range", bit))
	}
	c := ControlMask{Used: 1 << bit}
	if on {
		c.Desired = c.Used
	}
	return c
}

// IsNone reports whether the mask never restricts.
func (c ControlMask) IsNone() bool {
	return c.Used == 0
}

// Matches reports whether basis state k satisfies the mask.
func (c ControlMask) Matches(k uint32) bool {
	return bits.Matches(k, c.Used, c.Desired)
}

// Combine returns the mask requiring both c and other. Masks that demand
// different values for the same bit cannot be combined.
func (c ControlMask) Combine(other ControlMask) (ControlMask, error) {
	shared := c.Used & other.Used
	if (c.Desired^other.Desired)&shared != 0 {
		return ControlMask{}, fmt.Errorf("%w: %v conflicts with %v", ErrInvalidMask, c, other)
	}
	return ControlMask{Used: c.Used | other.Used, Desired: c.Desired | other.Desired}, nil
}

// Validate checks the mask against a register of span qubits.
func (c ControlMask) Validate(span int) error {
	if c.Desired&^c.Used != 0 {
		return fmt.Errorf("%w: desired bits %#b outside used bits %#b", ErrInvalidMask, c.Desired, c.Used)
	}
	if c.Used&^bits.SpanMask(span) != 0 {
		return fmt.Errorf("%w: used bits %#b exceed %d qubits", ErrInvalidMask, c.Used, span)
	}
	return nil
}

// String returns a compact description such as "controls(q0=1,q2=0)".
func (c ControlMask) String() string {
	if c.Used == 0 {
		return "controls()"
	}
	s := "controls("
	first := true
	for b := range 32 {
		if c.Used&(1<<b) == 0 {
			continue
		}
		if !first {
			s += ","
		}
		first = false
		v := 0
		if c.Desired&(1<<b) != 0 {
			v = 1
		}
		s += fmt.Sprintf("q%d=%d", b, v)
	}
	return s + ")"
}
