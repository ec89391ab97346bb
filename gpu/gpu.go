//go:build !nogpu

// Package gpu registers the wgpu compute device for hardware-accelerated
// state-vector evaluation.
//
// Import this package to let engines created without qsim.WithDevice run
// their kernels as WGSL compute shaders through wgpu/hal.
//
// If GPU initialization fails (no Vulkan device available), the registration
// is skipped with a warning and engines use the software device.
//
// Usage:
//
//	import _ "github.com/gogpu/qsim/gpu" // enable GPU evaluation
package gpu

import (
	"github.com/gogpu/qsim"
	"github.com/gogpu/qsim/backend/wgpu"
)

func init() {
	if err := qsim.RegisterDevice(wgpu.New()); err != nil {
		qsim.Logger().Warn("GPU device not available", "err", err)
	}
}

// SetDeviceProvider configures the registered GPU device to use a shared GPU
// device from an external provider (e.g., gogpu). This avoids creating a
// separate GPU instance.
//
// The provider should be a gpucontext.DeviceProvider that also exposes
// HalDevice() and HalQueue() for direct HAL access.
//
// Call this before computing any values; buffers of the previous device are
// dropped.
func SetDeviceProvider(provider any) error {
	return qsim.SetDeviceProvider(provider)
}
