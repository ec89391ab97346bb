package qsim

import (
	"errors"
	"sync"

	"github.com/gogpu/qsim/gpucore"
)

// HardwareDevice is a device backed by a GPU.
//
// Implementations are provided by backend packages and registered through a
// blank import:
//
//	import _ "github.com/gogpu/qsim/gpu" // enables GPU evaluation
//
// Engines created without WithDevice use the registered device when it
// reports compute support, and a software device otherwise.
type HardwareDevice interface {
	gpucore.Device

	// Init acquires GPU resources. Called once during registration.
	Init() error
}

// DeviceProviderAware is implemented by hardware devices that can share a GPU
// device with an external provider instead of creating their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var errNilDevice = errors.New("qsim: device must not be nil")

var (
	deviceMu sync.RWMutex
	hwDevice HardwareDevice
)

// RegisterDevice registers the hardware device.
//
// Only one device can be registered; a later registration replaces and closes
// the previous one. If Init fails the device is not registered and the error
// is returned.
func RegisterDevice(d HardwareDevice) error {
	if d == nil {
		return errNilDevice
	}
	if err := d.Init(); err != nil {
		return err
	}
	deviceMu.Lock()
	old := hwDevice
	hwDevice = d
	deviceMu.Unlock()
	if old != nil {
		old.Close()
	}

	propagateLogger(d, Logger())
	Logger().Info("hardware device registered",
		"device", d.Name(),
		"adapter", d.Capabilities().DeviceName)
	return nil
}

// RegisteredDevice returns the registered hardware device, or nil.
func RegisteredDevice() HardwareDevice {
	deviceMu.RLock()
	d := hwDevice
	deviceMu.RUnlock()
	return d
}

// SetDeviceProvider passes a shared GPU device provider to the registered
// hardware device. It is a no-op when no device is registered or the device
// cannot share.
func SetDeviceProvider(provider any) error {
	d := RegisteredDevice()
	if d == nil {
		return nil
	}
	if dpa, ok := d.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

// CloseRegisteredDevice closes and unregisters the hardware device.
// Engines still using it must be closed first.
func CloseRegisteredDevice() {
	deviceMu.Lock()
	d := hwDevice
	hwDevice = nil
	deviceMu.Unlock()
	if d != nil {
		d.Close()
	}
}
