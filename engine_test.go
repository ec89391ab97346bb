package qsim

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/qsim/backend/cpu"
)

func TestEngineFacade(t *testing.T) {
	e := newTestEngine(t)

	st := must(e.CreateStateFromAmplitudes([]complex128{1, 0, 0, 0}))
	st = must(e.ApplyGate(st, 0, NoControls, PauliX()))
	st = must(e.ApplySwap(st, 0, 1, NoControls))
	r := must(e.RequestRead(st))

	assertAmplitudes(t, mustCompute(t, r.Amplitudes()), reals(0, 0, 1, 0))

	other := newTestEngine(t)
	if _, err := other.ApplyGate(st, 0, NoControls, PauliX()); !errors.Is(err, ErrEngineMismatch) {
		t.Errorf("ApplyGate with foreign state error = %v, want ErrEngineMismatch", err)
	}
	if _, err := other.ApplySwap(st, 0, 1, NoControls); !errors.Is(err, ErrEngineMismatch) {
		t.Errorf("ApplySwap with foreign state error = %v, want ErrEngineMismatch", err)
	}
	if _, err := other.RequestRead(nil); !errors.Is(err, ErrEngineMismatch) {
		t.Errorf("RequestRead(nil) error = %v, want ErrEngineMismatch", err)
	}
}

func TestEngineWithDevice(t *testing.T) {
	dev := cpu.New(cpu.Config{Workers: 1})
	t.Cleanup(dev.Close)

	e := newTestEngine(t, WithDevice(dev))
	if e.Device() != dev {
		t.Fatal("engine should use the device passed with WithDevice")
	}
	st := must(e.FromClassicalState(1, 2))
	assertAmplitudes(t, renormalized(t, st), reals(0, 1, 0, 0))

	e.Close()
	if _, err := dev.Upload(1, 1, make([]float32, 4)); err != nil {
		t.Errorf("device closed by engine: %v", err)
	}
}

func TestEngineRejectsDeviceWithoutCompute(t *testing.T) {
	mock := newMockDevice("display-only")
	mock.compute = false
	t.Cleanup(mock.Close)

	if _, err := NewEngine(WithDevice(mock)); !errors.Is(err, ErrDeviceFailure) {
		t.Errorf("NewEngine error = %v, want ErrDeviceFailure", err)
	}
}

func TestEngineMaxQubits(t *testing.T) {
	e := newTestEngine(t, WithMaxQubits(4))
	if e.MaxQubits() != 4 {
		t.Fatalf("MaxQubits() = %d, want 4", e.MaxQubits())
	}
	if _, err := e.FromClassicalState(0, 5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("5-qubit state error = %v, want ErrOutOfRange", err)
	}
	if _, err := e.FromAmplitudes(make([]complex128, 32)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("32 amplitudes error = %v, want ErrOutOfRange", err)
	}

	// Out-of-range limits are ignored.
	for _, n := range []int{0, -3, 25} {
		e := newTestEngine(t, WithMaxQubits(n))
		if e.MaxQubits() != 24 {
			t.Errorf("WithMaxQubits(%d): MaxQubits() = %d, want 24", n, e.MaxQubits())
		}
	}
}

func TestEngineInterning(t *testing.T) {
	tests := []struct {
		interning bool
		added     int
	}{
		{true, 2},
		{false, 4},
	}
	for _, tt := range tests {
		e := newTestEngine(t, WithInterning(tt.interning))
		before := e.Stats().Nodes

		a := must(e.FromClassicalState(3, 2))
		b := must(e.FromClassicalState(3, 2))
		_ = must(a.WithGateApplied(0, Hadamard(), NoControls))
		_ = must(b.WithGateApplied(0, Hadamard(), NoControls))

		if got := e.Stats().Nodes - before; got != tt.added {
			t.Errorf("interning=%v: %d nodes added, want %d", tt.interning, got, tt.added)
		}
	}
}

func TestEngineGraphGrowsPerDerivation(t *testing.T) {
	e := newTestEngine(t)
	r := must(e.FromClassicalState(1, 2)).Read()

	before := e.Stats().Nodes
	for range 3 {
		if _, err := r.Probabilities().Compute(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := e.Stats().Nodes - before; got != 3 {
		t.Errorf("%d nodes added by three derivations, want 3", got)
	}
}

func TestEngineReleasesBuffersAfterRun(t *testing.T) {
	e := newTestEngine(t)

	st := must(e.FromClassicalState(0, 6))
	for q := range 6 {
		st = must(st.WithGateApplied(q, Hadamard(), ControlBitIs((q+1)%6, false)))
	}
	if _, err := st.Read().Probabilities().Compute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if live := e.Stats().Device.LiveBuffers; live != 0 {
		t.Errorf("%d live buffers after run, want 0", live)
	}
}

func TestEngineDeviceFailure(t *testing.T) {
	// A 20-qubit buffer fills the whole 16 MB budget, so the gate's output
	// cannot be allocated.
	e := newTestEngine(t, WithMemoryBudgetMB(16))

	st := must(e.FromClassicalState(0, 20))
	st = must(st.WithGateApplied(0, Hadamard(), NoControls))

	_, err := st.Read().Raw().Compute(context.Background())
	if !errors.Is(err, ErrDeviceFailure) {
		t.Fatalf("Compute error = %v, want ErrDeviceFailure", err)
	}
	if !errors.Is(err, cpu.ErrMemoryBudgetExceeded) {
		t.Errorf("Compute error = %v, want the device cause", err)
	}
	if live := e.Stats().Device.LiveBuffers; live != 0 {
		t.Errorf("%d live buffers after failed run, want 0", live)
	}

	// The engine stays usable for smaller work.
	small := must(e.FromClassicalState(1, 2))
	assertAmplitudes(t, renormalized(t, small), reals(0, 1, 0, 0))
}

func TestEngineComputeCancelled(t *testing.T) {
	e := newTestEngine(t)
	st := must(e.FromClassicalState(0, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Read().Raw().Compute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Compute error = %v, want context.Canceled", err)
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	e := newTestEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := e.FromClassicalState(i, 3)
			if err != nil {
				errs <- err
				return
			}
			st, err = st.WithGateApplied(i%3, PauliX(), NoControls)
			if err != nil {
				errs <- err
				return
			}
			probs, err := st.Read().Probabilities().Compute(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if want := i ^ 1<<(i%3); probs[want] != 1 {
				errs <- errors.New("wrong basis state")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
