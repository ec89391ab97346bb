package qsim

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestMatricesAreUnitary(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix2
	}{
		{"identity", Identity()},
		{"hadamard", Hadamard()},
		{"pauli x", PauliX()},
		{"pauli y", PauliY()},
		{"pauli z", PauliZ()},
		{"phase", Phase(0.3)},
		{"rotation +1/3", TargetedRotation(1.0 / 3)},
		{"rotation -2/3", TargetedRotation(-2.0 / 3)},
		{"rotation clamped", TargetedRotation(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.m.IsUnitary(1e-12) {
				t.Errorf("%v is not unitary", tt.m)
			}
		})
	}
	if (Matrix2{1, 1, 0, 1}).IsUnitary(1e-9) {
		t.Error("shear reported as unitary")
	}
}

func TestMatrixMul(t *testing.T) {
	hh := Hadamard().Mul(Hadamard())
	id := Identity()
	for i := range hh {
		if cmplx.Abs(hh[i]-id[i]) > 1e-12 {
			t.Fatalf("H*H = %v, want identity", hh)
		}
	}
	xy := PauliX().Mul(PauliY())
	// XY = iZ
	want := Matrix2{1i, 0, 0, -1i}
	for i := range xy {
		if cmplx.Abs(xy[i]-want[i]) > 1e-12 {
			t.Fatalf("X*Y = %v, want %v", xy, want)
		}
	}
}

func TestTargetedRotation(t *testing.T) {
	for _, p := range []float64{0, 0.25, -0.5, 1, -1} {
		m := TargetedRotation(p)
		// |0> goes to (m[0], m[2]); the on probability is |p|.
		if got := real(m[2]) * real(m[2]); math.Abs(got-math.Abs(p)) > 1e-12 {
			t.Errorf("TargetedRotation(%v) on probability = %v", p, got)
		}
		if p != 0 && math.Signbit(real(m[2])) != math.Signbit(p) {
			t.Errorf("TargetedRotation(%v) on amplitude %v has the wrong sign", p, m[2])
		}
	}
}
