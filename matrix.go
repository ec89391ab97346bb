package qsim

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Matrix2 is a 2x2 complex matrix in row-major order:
//
//	| M[0] M[1] |
//	| M[2] M[3] |
//
// Gate catalogues produce these coefficients; the engine only applies them.
type Matrix2 [4]complex128

// Identity returns the identity matrix.
func Identity() Matrix2 {
	return Matrix2{1, 0, 0, 1}
}

// Hadamard returns the Hadamard gate.
func Hadamard() Matrix2 {
	s := complex(1/math.Sqrt2, 0)
	return Matrix2{s, s, s, -s}
}

// PauliX returns the NOT gate.
func PauliX() Matrix2 {
	return Matrix2{0, 1, 1, 0}
}

// PauliY returns the Pauli Y gate.
func PauliY() Matrix2 {
	return Matrix2{0, -1i, 1i, 0}
}

// PauliZ returns the Pauli Z gate.
func PauliZ() Matrix2 {
	return Matrix2{1, 0, 0, -1}
}

// Phase returns diag(1, e^(i theta)).
func Phase(theta float64) Matrix2 {
	return Matrix2{1, 0, 0, cmplx.Rect(1, theta)}
}

// TargetedRotation returns the real rotation that moves |0> to an amplitude
// whose probability of being on is |p|. The sign of p gives the sign of the
// on amplitude. p is clamped to [-1, 1].
func TargetedRotation(p float64) Matrix2 {
	p = max(-1, min(1, p))
	c := math.Sqrt(1 - math.Abs(p))
	s := math.Copysign(math.Sqrt(math.Abs(p)), p)
	return Matrix2{complex(c, 0), complex(-s, 0), complex(s, 0), complex(c, 0)}
}

// Mul returns m*n.
func (m Matrix2) Mul(n Matrix2) Matrix2 {
	return Matrix2{
		m[0]*n[0] + m[1]*n[2], m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2], m[2]*n[1] + m[3]*n[3],
	}
}

// Adjoint returns the conjugate transpose of m.
func (m Matrix2) Adjoint() Matrix2 {
	return Matrix2{cmplx.Conj(m[0]), cmplx.Conj(m[2]), cmplx.Conj(m[1]), cmplx.Conj(m[3])}
}

// IsUnitary reports whether m*m^H is the identity within eps.
func (m Matrix2) IsUnitary(eps float64) bool {
	p := m.Mul(m.Adjoint())
	id := Identity()
	for i := range p {
		if cmplx.Abs(p[i]-id[i]) > eps {
			return false
		}
	}
	return true
}

// String returns the matrix as {{a, b}, {c, d}}.
func (m Matrix2) String() string {
	return fmt.Sprintf("{{%v, %v}, {%v, %v}}", m[0], m[1], m[2], m[3])
}
