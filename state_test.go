package qsim

import (
	"context"
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-4

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(append([]EngineOption{WithWorkers(2)}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func mustCompute[T any](t *testing.T, l Lazy[T]) T {
	t.Helper()
	v, err := l.Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return v
}

func renormalized(t *testing.T, s *State) []complex64 {
	t.Helper()
	return mustCompute(t, s.Read().RenormalizedAmplitudes())
}

func assertAmplitudes(t *testing.T, got []complex64, want []complex128) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d amplitudes, want %d", len(got), len(want))
	}
	for i := range want {
		d := complex128(got[i]) - want[i]
		if math.Hypot(real(d), imag(d)) > tolerance {
			t.Fatalf("amplitude %d = %v, want %v\ngot  %v\nwant %v", i, got[i], want[i], got, want)
		}
	}
}

func reals(vs ...float64) []complex128 {
	out := make([]complex128, len(vs))
	for i, v := range vs {
		out[i] = complex(v, 0)
	}
	return out
}

// must returns v and panics on err. Constructors under test report
// failures through their own assertions.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestFromAmplitudes(t *testing.T) {
	e := newTestEngine(t)

	for _, amps := range [][]complex128{nil, {1, 2, 3}} {
		if _, err := e.FromAmplitudes(amps); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("FromAmplitudes(%v) error = %v, want ErrInvalidShape", amps, err)
		}
	}

	s := must(e.FromAmplitudes([]complex128{1.5, 1 - 2i, 0, 1i}))
	if s.QubitCount() != 2 {
		t.Errorf("QubitCount() = %d, want 2", s.QubitCount())
	}
	raw := mustCompute(t, s.Read().Raw())
	want := []float32{1.5, 0, 0, 0, 1, -2, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0}
	if len(raw) != len(want) {
		t.Fatalf("raw = %v, want %v", raw, want)
	}
	for i := range want {
		if raw[i] != want[i] {
			t.Fatalf("raw = %v, want %v", raw, want)
		}
	}

	n := math.Sqrt(8.25)
	assertAmplitudes(t, renormalized(t, s), []complex128{
		complex(1.5/n, 0), complex(1/n, -2/n), 0, complex(0, 1/n),
	})

	probs := mustCompute(t, s.Read().Probabilities())
	for i, want := range []float32{2.25, 5, 0, 1} {
		if math.Abs(float64(probs[i]-want)) > tolerance {
			t.Errorf("probability %d = %v, want %v", i, probs[i], want)
		}
	}
}

func TestFromAmplitudesRawSixteen(t *testing.T) {
	e := newTestEngine(t)
	amps := make([]complex128, 16)
	for i := range amps {
		amps[i] = complex(float64(i), 0)
	}
	raw := mustCompute(t, must(e.FromAmplitudes(amps)).Read().Raw())
	for i := range 16 {
		if raw[i*4] != float32(i) || raw[i*4+1] != 0 || raw[i*4+2] != 0 || raw[i*4+3] != 0 {
			t.Fatalf("cell %d = %v, want (%d, 0, 0, 0)", i, raw[i*4:i*4+4], i)
		}
	}
}

func TestFromClassicalState(t *testing.T) {
	e := newTestEngine(t)

	for _, bad := range [][2]int{{-1, 2}, {4, 2}, {9, 3}, {0, 25}} {
		if _, err := e.FromClassicalState(bad[0], bad[1]); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("FromClassicalState(%d, %d) error = %v, want ErrOutOfRange", bad[0], bad[1], err)
		}
	}

	tests := []struct {
		value, qubits int
	}{
		{0, 4}, {6, 4}, {3, 2}, {0, 0}, {5, 3},
	}
	for _, tt := range tests {
		s := must(e.FromClassicalState(tt.value, tt.qubits))
		want := make([]complex128, 1<<tt.qubits)
		want[tt.value] = 1
		assertAmplitudes(t, renormalized(t, s), want)
	}
}

func TestWithGateAppliedSequence(t *testing.T) {
	e := newTestEngine(t)
	s := math.Sqrt(0.5)

	st := must(e.FromClassicalState(7, 3))
	steps := []struct {
		name     string
		target   int
		controls ControlMask
		want     []complex128
	}{
		{"H q0", 0, NoControls, reals(0, 0, 0, 0, 0, 0, s, -s)},
		{"H q1", 1, NoControls, reals(0, 0, 0, 0, .5, -.5, -.5, .5)},
		{"H q2", 2, NoControls, reals(s/2, -s/2, -s/2, s/2, -s/2, s/2, s/2, -s/2)},
		{"H q1 if q0", 1, ControlBitIs(0, true), reals(s/2, 0, -s/2, -.5, -s/2, 0, s/2, .5)},
		{"H q2 if not q0 q1", 2, ControlMask{Used: 3, Desired: 0}, reals(0, 0, -s/2, -.5, .5, 0, s/2, .5)},
	}
	for _, step := range steps {
		st = must(st.WithGateApplied(step.target, Hadamard(), step.controls))
		t.Run(step.name, func(t *testing.T) {
			assertAmplitudes(t, renormalized(t, st), step.want)
		})
	}
}

func TestWithGateAppliedIdentity(t *testing.T) {
	e := newTestEngine(t)
	amps := []complex128{0.5, 0.5i, -0.5, 0.25 + 0.25i, 0, 0.1, 0.2, -0.3i}
	st := must(e.FromAmplitudes(amps))

	for q := range 3 {
		for _, c := range []ControlMask{NoControls, ControlBitIs((q+1)%3, true), ControlBitIs((q+2)%3, false)} {
			got := must(st.WithGateApplied(q, Identity(), c))
			assertAmplitudes(t, mustCompute(t, got.Read().Amplitudes()), amps)
		}
	}
}

func TestWithGateAppliedErrors(t *testing.T) {
	e := newTestEngine(t)
	st := must(e.FromClassicalState(0, 3))

	tests := []struct {
		name     string
		target   int
		controls ControlMask
		wantErr  error
	}{
		{"negative target", -1, NoControls, ErrOutOfRange},
		{"target too high", 3, NoControls, ErrOutOfRange},
		{"desired outside used", 0, ControlMask{Used: 2, Desired: 4}, ErrInvalidMask},
		{"control beyond state", 0, ControlBitIs(3, true), ErrInvalidMask},
		{"target is control", 1, ControlBitIs(1, true), ErrInvalidMask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.Stats().Nodes
			if _, err := st.WithGateApplied(tt.target, Hadamard(), tt.controls); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if e.Stats().Nodes != before {
				t.Error("a rejected operation must not add nodes")
			}
		})
	}
}

func TestControlledGateMatchesDirectSimulation(t *testing.T) {
	e := newTestEngine(t)
	amps := make([]complex128, 16)
	for i := range amps {
		amps[i] = complex(float64(i+1), float64(i%3))
	}
	st := must(e.FromAmplitudes(amps))

	// Covers contiguous and scattered control layouts.
	tests := []struct {
		target   int
		controls ControlMask
	}{
		{0, ControlMask{Used: 0b1100, Desired: 0b0100}},
		{1, ControlMask{Used: 0b1000, Desired: 0b1000}},
		{2, ControlMask{Used: 0b1001, Desired: 0b0001}},
		{3, ControlMask{Used: 0b0101, Desired: 0b0000}},
		{1, ControlMask{Used: 0b1101, Desired: 0b1001}},
	}
	m := Matrix2{0.6, 0.8i, 0.8i, 0.6}
	for _, tt := range tests {
		t.Run(tt.controls.String(), func(t *testing.T) {
			got := mustCompute(t, must(st.WithGateApplied(tt.target, m, tt.controls)).Read().Amplitudes())

			want := append([]complex128(nil), amps...)
			bit := 1 << tt.target
			for k := range want {
				if k&bit != 0 || !tt.controls.Matches(uint32(k)) {
					continue
				}
				a, b := amps[k], amps[k|bit]
				want[k] = m[0]*a + m[1]*b
				want[k|bit] = m[2]*a + m[3]*b
			}
			assertAmplitudes(t, got, want)
		})
	}
}

func TestWithSwap(t *testing.T) {
	e := newTestEngine(t)
	st := must(e.FromClassicalState(1, 3))

	steps := []struct {
		a, b int
		want int
	}{
		{0, 1, 2},
		{0, 1, 1},
		{0, 2, 4},
		{1, 2, 2},
	}
	for _, step := range steps {
		st = must(st.WithSwap(step.a, step.b, NoControls))
		want := make([]complex128, 8)
		want[step.want] = 1
		assertAmplitudes(t, renormalized(t, st), want)
	}
}

func TestWithSwapTwiceIsIdentity(t *testing.T) {
	e := newTestEngine(t)
	amps := make([]complex128, 16)
	for i := range amps {
		amps[i] = complex(float64(i), -float64(i)/2)
	}
	st := must(e.FromAmplitudes(amps))

	tests := []struct {
		a, b     int
		controls ControlMask
	}{
		{1, 3, NoControls},
		{1, 3, ControlBitIs(2, true)},
		{1, 2, ControlMask{Used: 0b1001, Desired: 0b1000}},
		{0, 3, ControlMask{Used: 0b0110, Desired: 0b0010}},
	}
	for _, tt := range tests {
		once := must(st.WithSwap(tt.a, tt.b, tt.controls))
		twice := must(once.WithSwap(tt.a, tt.b, tt.controls))
		assertAmplitudes(t, mustCompute(t, twice.Read().Amplitudes()), amps)
	}
}

func TestWithSwapControlled(t *testing.T) {
	e := newTestEngine(t)

	// |q2 q1 q0> = |1 0 1>: swapping q0 and q1 only when q2 is on.
	on := must(e.FromClassicalState(0b101, 3))
	got := must(on.WithSwap(0, 1, ControlBitIs(2, true)))
	want := make([]complex128, 8)
	want[0b110] = 1
	assertAmplitudes(t, renormalized(t, got), want)

	off := must(e.FromClassicalState(0b001, 3))
	got = must(off.WithSwap(0, 1, ControlBitIs(2, true)))
	want = make([]complex128, 8)
	want[0b001] = 1
	assertAmplitudes(t, renormalized(t, got), want)

	if _, err := on.WithSwap(0, 2, ControlBitIs(2, true)); !errors.Is(err, ErrInvalidMask) {
		t.Errorf("swap over a control error = %v, want ErrInvalidMask", err)
	}
	if _, err := on.WithSwap(0, 3, NoControls); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("swap out of range error = %v, want ErrOutOfRange", err)
	}
}

func TestWithIncrement(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name                 string
		start                int
		offset, span, amount int
		controls             ControlMask
		want                 int
	}{
		{"whole register", 3, 0, 3, 1, NoControls, 4},
		{"wraps", 7, 0, 3, 1, NoControls, 0},
		{"decrement", 0, 0, 3, -1, NoControls, 7},
		{"upper span", 0b0110, 2, 2, 1, NoControls, 0b1010},
		{"by three", 1, 0, 2, 3, NoControls, 0},
		{"controlled on", 0b1001, 1, 2, 1, ControlBitIs(0, true), 0b1011},
		{"controlled off", 0b1000, 1, 2, 1, ControlBitIs(0, true), 0b1000},
		{"controlled above", 0b1000, 0, 2, 2, ControlBitIs(3, true), 0b1010},
		{"zero amount", 5, 0, 4, 16, NoControls, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := must(e.FromClassicalState(tt.start, 4))
			got := must(st.WithIncrement(tt.offset, tt.span, tt.amount, tt.controls))
			want := make([]complex128, 16)
			want[tt.want] = 1
			assertAmplitudes(t, renormalized(t, got), want)
		})
	}
}

func TestWithIncrementInverse(t *testing.T) {
	e := newTestEngine(t)
	amps := make([]complex128, 8)
	for i := range amps {
		amps[i] = complex(float64(i+1), 0)
	}
	st := must(e.FromAmplitudes(amps))

	up := must(st.WithIncrement(0, 3, 1, NoControls))
	down := must(up.WithIncrement(0, 3, -1, NoControls))
	assertAmplitudes(t, mustCompute(t, down.Read().Amplitudes()), amps)

	if _, err := st.WithIncrement(2, 2, 1, NoControls); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("span beyond register error = %v, want ErrOutOfRange", err)
	}
	if _, err := st.WithIncrement(0, 2, 1, ControlBitIs(1, true)); !errors.Is(err, ErrInvalidMask) {
		t.Errorf("control inside span error = %v, want ErrInvalidMask", err)
	}
}

func TestControlMaskBuffer(t *testing.T) {
	e := newTestEngine(t)
	st := must(e.FromClassicalState(0, 3))

	got := mustCompute(t, must(st.ControlMaskBuffer(ControlMask{Used: 0b110, Desired: 0b010})))
	want := []float32{0, 0, 1, 1, 0, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mask = %v, want %v", got, want)
		}
	}

	all := mustCompute(t, must(st.ControlMaskBuffer(NoControls)))
	for i, v := range all {
		if v != 1 {
			t.Fatalf("NoControls mask cell %d = %v, want 1", i, v)
		}
	}

	if _, err := st.ControlMaskBuffer(ControlBitIs(5, true)); !errors.Is(err, ErrInvalidMask) {
		t.Errorf("mask beyond state error = %v, want ErrInvalidMask", err)
	}
}

func TestStatesAreImmutable(t *testing.T) {
	e := newTestEngine(t)
	base := must(e.FromClassicalState(0, 2))
	_ = must(base.WithGateApplied(0, PauliX(), NoControls))
	assertAmplitudes(t, renormalized(t, base), reals(1, 0, 0, 0))
}
