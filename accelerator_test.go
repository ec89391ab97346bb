package qsim

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/qsim/backend/cpu"
	"github.com/gogpu/qsim/gpucore"
)

// mockDevice implements HardwareDevice on top of the software device.
type mockDevice struct {
	*cpu.Device

	name     string
	initErr  error
	compute  bool
	mu       sync.Mutex
	closed   bool
	logger   *slog.Logger
	provider any
}

func newMockDevice(name string) *mockDevice {
	return &mockDevice{Device: cpu.New(cpu.Config{Workers: 1}), name: name, compute: true}
}

func (m *mockDevice) Name() string { return m.name }

func (m *mockDevice) Init() error { return m.initErr }

func (m *mockDevice) Capabilities() gpucore.Capabilities {
	c := m.Device.Capabilities()
	c.SupportsCompute = m.compute
	c.DeviceName = "mock adapter"
	return c
}

func (m *mockDevice) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Device.Close()
}

func (m *mockDevice) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockDevice) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

func (m *mockDevice) currentLogger() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}

func (m *mockDevice) SetDeviceProvider(provider any) error {
	if provider == nil {
		return errors.New("nil provider")
	}
	m.provider = provider
	return nil
}

// resetDevice clears the global device registration between tests.
func resetDevice() {
	deviceMu.Lock()
	hwDevice = nil
	deviceMu.Unlock()
}

func TestRegisterDeviceNil(t *testing.T) {
	resetDevice()

	err := RegisterDevice(nil)
	if err == nil {
		t.Fatal("expected error when registering nil device")
	}
	if err.Error() != "qsim: device must not be nil" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if RegisteredDevice() != nil {
		t.Error("device should remain nil after failed registration")
	}
}

func TestRegisterDeviceInitError(t *testing.T) {
	resetDevice()
	t.Cleanup(resetDevice)

	initErr := errors.New("GPU init failed")
	mock := newMockDevice("failing")
	mock.initErr = initErr
	t.Cleanup(mock.Device.Close)

	err := RegisterDevice(mock)
	if !errors.Is(err, initErr) {
		t.Fatalf("RegisterDevice() = %v, want %v", err, initErr)
	}
	if RegisteredDevice() != nil {
		t.Error("device should not be registered when Init fails")
	}
}

func TestRegisterDeviceReplacesAndClosesOld(t *testing.T) {
	resetDevice()
	t.Cleanup(CloseRegisteredDevice)

	first := newMockDevice("first")
	second := newMockDevice("second")

	if err := RegisterDevice(first); err != nil {
		t.Fatalf("RegisterDevice(first) = %v", err)
	}
	if err := RegisterDevice(second); err != nil {
		t.Fatalf("RegisterDevice(second) = %v", err)
	}

	if !first.isClosed() {
		t.Error("replaced device should be closed")
	}
	if second.isClosed() {
		t.Error("current device should stay open")
	}
	if got := RegisteredDevice(); got != second {
		t.Errorf("RegisteredDevice() = %v, want second", got)
	}
}

func TestCloseRegisteredDevice(t *testing.T) {
	resetDevice()

	mock := newMockDevice("closing")
	if err := RegisterDevice(mock); err != nil {
		t.Fatal(err)
	}
	CloseRegisteredDevice()

	if !mock.isClosed() {
		t.Error("CloseRegisteredDevice should close the device")
	}
	if RegisteredDevice() != nil {
		t.Error("CloseRegisteredDevice should unregister the device")
	}

	// Second call is a no-op.
	CloseRegisteredDevice()
}

func TestSetDeviceProvider(t *testing.T) {
	resetDevice()
	t.Cleanup(CloseRegisteredDevice)

	if err := SetDeviceProvider("provider"); err != nil {
		t.Errorf("SetDeviceProvider without device = %v, want nil", err)
	}

	mock := newMockDevice("shared")
	if err := RegisterDevice(mock); err != nil {
		t.Fatal(err)
	}
	if err := SetDeviceProvider("provider"); err != nil {
		t.Fatalf("SetDeviceProvider() = %v", err)
	}
	if mock.provider != "provider" {
		t.Errorf("provider = %v, want %q", mock.provider, "provider")
	}
	if err := SetDeviceProvider(nil); err == nil {
		t.Error("device error should be returned")
	}
}

func TestEngineUsesRegisteredDevice(t *testing.T) {
	resetDevice()
	t.Cleanup(CloseRegisteredDevice)

	mock := newMockDevice("mock-gpu")
	if err := RegisterDevice(mock); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if e.Device() != mock {
		t.Fatalf("engine device = %s, want the registered device", e.Device().Name())
	}

	st := must(e.FromClassicalState(1, 1))
	st = must(st.WithGateApplied(0, PauliX(), NoControls))
	assertAmplitudes(t, renormalized(t, st), reals(1, 0))

	// Closing the engine leaves a shared device open.
	e.Close()
	if mock.isClosed() {
		t.Error("engine must not close the registered device")
	}
}

func TestEngineSkipsDeviceWithoutCompute(t *testing.T) {
	resetDevice()
	t.Cleanup(CloseRegisteredDevice)

	mock := newMockDevice("no-compute")
	mock.compute = false
	if err := RegisterDevice(mock); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if e.Device().Name() != "cpu" {
		t.Errorf("engine device = %q, want software fallback", e.Device().Name())
	}
}
