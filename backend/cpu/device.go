// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
	"github.com/gogpu/qsim/internal/parallel"
)

// MaxBufferCells is the largest buffer the software device accepts. It leaves
// room for read atlases holding several maximal states.
const MaxBufferCells = 1 << (bits.MaxQubits + 2)

// Config configures a software device. The zero value is usable.
type Config struct {
	// Workers is the number of goroutines evaluating kernels.
	// Defaults to GOMAXPROCS if <= 0.
	Workers int

	// MaxMemoryMB is the buffer memory budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int
}

// Device evaluates kernels on the host. Each kernel call is split into
// row ranges that run on a shared worker pool.
//
// Device is safe for concurrent use.
type Device struct {
	pool *parallel.WorkerPool
	mem  *MemoryManager

	uploads    atomic.Uint64
	dispatches atomic.Uint64
	readbacks  atomic.Uint64
	closed     atomic.Bool
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device.
func New(cfg Config) *Device {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Device{
		pool: parallel.NewWorkerPool(workers),
		mem:  NewMemoryManager(MemoryManagerConfig{MaxMemoryMB: cfg.MaxMemoryMB}),
	}
}

// Name returns "cpu".
func (d *Device) Name() string { return "cpu" }

// Capabilities reports the software device capabilities.
func (d *Device) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{
		SupportsCompute: true,
		NativeBitwise:   true,
		MaxBufferCells:  MaxBufferCells,
		DeviceName:      fmt.Sprintf("software (%d workers)", d.pool.Workers()),
	}
}

// Upload copies cells into a new buffer.
func (d *Device) Upload(width, height int, cells []float32) (gpucore.Buffer, error) {
	if want := width * height * gpucore.Channels; len(cells) != want {
		return gpucore.Buffer{}, fmt.Errorf("cpu: upload of %dx%d needs %d values, got %d",
			width, height, want, len(cells))
	}
	if err := d.checkSize(width, height); err != nil {
		return gpucore.Buffer{}, err
	}
	buf, storage, err := d.mem.Alloc(width, height)
	if err != nil {
		return gpucore.Buffer{}, err
	}
	copy(storage, cells)
	d.uploads.Add(1)
	return buf, nil
}

// Dispatch evaluates call into a fresh buffer.
func (d *Device) Dispatch(call gpucore.KernelCall) (gpucore.Buffer, error) {
	if err := call.Validate(); err != nil {
		return gpucore.Buffer{}, err
	}
	fn, ok := kernelTable[call.Kernel]
	if !ok {
		return gpucore.Buffer{}, fmt.Errorf("cpu: unsupported kernel %s", call.Kernel)
	}
	if err := d.checkSize(call.Width, call.Height); err != nil {
		return gpucore.Buffer{}, err
	}

	inputs := make([][]float32, len(call.Inputs))
	for i, in := range call.Inputs {
		storage, err := d.mem.Lookup(in.ID)
		if err != nil {
			return gpucore.Buffer{}, fmt.Errorf("cpu: %s input %d: %w", call.Kernel, i, err)
		}
		inputs[i] = storage
	}

	buf, out, err := d.mem.Alloc(call.Width, call.Height)
	if err != nil {
		return gpucore.Buffer{}, err
	}
	d.pool.ForRange(call.Len(), func(lo, hi int) {
		fn(&call, inputs, out, lo, hi)
	})
	d.dispatches.Add(1)
	return buf, nil
}

func (d *Device) checkSize(width, height int) error {
	if d.closed.Load() {
		return ErrMemoryManagerClosed
	}
	if n := width * height; n > MaxBufferCells {
		return fmt.Errorf("cpu: buffer of %d cells exceeds limit %d", n, MaxBufferCells)
	}
	return nil
}

// Read returns a copy of the buffer cells.
func (d *Device) Read(buf gpucore.Buffer) ([]float32, error) {
	storage, err := d.mem.Lookup(buf.ID)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(storage))
	copy(out, storage)
	d.readbacks.Add(1)
	return out, nil
}

// Release returns the buffer to the free list. Unknown buffers are ignored.
func (d *Device) Release(buf gpucore.Buffer) {
	_ = d.mem.Free(buf.ID)
}

// Stats returns device counters.
func (d *Device) Stats() gpucore.Stats {
	ms := d.mem.Stats()
	return gpucore.Stats{
		Uploads:     d.uploads.Load(),
		Dispatches:  d.dispatches.Load(),
		Readbacks:   d.readbacks.Load(),
		LiveBuffers: ms.LiveBuffers,
		LiveBytes:   ms.LiveBytes,
	}
}

// MemoryStats returns the free-list statistics.
func (d *Device) MemoryStats() MemoryStats {
	return d.mem.Stats()
}

// Close stops the worker pool and drops pooled buffers.
func (d *Device) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.pool.Close()
	d.mem.Close()
}
