package gpucore

import "fmt"

// Device abstracts over the backends that store buffers and run kernels.
//
// Two implementations exist: a software device that evaluates kernels on the
// CPU, and a wgpu/hal device that runs them as WGSL compute shaders. Both
// produce bit-identical cell layouts so results do not depend on the backend.
//
// Resource lifecycle:
//   - Buffers are created by Upload or Dispatch and are immutable afterwards
//   - Buffers must be explicitly released via Release
//   - Releasing a buffer that is still an input of a pending call is undefined
//
// Read is the only operation that synchronizes the host with the device.
type Device interface {
	// Name returns the device name (e.g., "cpu", "wgpu").
	Name() string

	// Capabilities reports what the device supports.
	Capabilities() Capabilities

	// Upload copies host cells into a new buffer. cells must hold
	// width*height*Channels values.
	Upload(width, height int, cells []float32) (Buffer, error)

	// Dispatch runs a kernel and returns its freshly allocated output.
	Dispatch(call KernelCall) (Buffer, error)

	// Read copies a buffer back to the host. This blocks until every call
	// producing the buffer has completed.
	Read(buf Buffer) ([]float32, error)

	// Release returns a buffer to the device.
	Release(buf Buffer)

	// Stats returns resource and synchronization counters.
	Stats() Stats

	// Close releases all device resources.
	Close()
}

// Capabilities describes a device for backend selection.
type Capabilities struct {
	// SupportsCompute indicates the device can run kernels.
	SupportsCompute bool

	// NativeBitwise indicates kernels use integer bitwise operators rather
	// than the arithmetic bit-loop encoding.
	NativeBitwise bool

	// MaxBufferCells is the largest buffer the device accepts.
	MaxBufferCells int

	// DeviceName is the adapter or implementation name.
	DeviceName string
}

// Stats contains device counters.
type Stats struct {
	Uploads     uint64
	Dispatches  uint64
	Readbacks   uint64
	LiveBuffers int
	LiveBytes   uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Device[%d uploads, %d dispatches, %d readbacks, %d live buffers, %d bytes]",
		s.Uploads, s.Dispatches, s.Readbacks, s.LiveBuffers, s.LiveBytes)
}
