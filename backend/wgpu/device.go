// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/qsim/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// MaxBufferCells is the largest buffer the device accepts: a 128 MB storage
// binding of 16-byte cells.
const MaxBufferCells = 1 << 23

// waitTimeout bounds a single fence wait.
const waitTimeout = 5 * time.Second

// maxInFlight is the number of submitted passes after which Dispatch waits
// and frees their resources.
const maxInFlight = 64

type deviceBuffer struct {
	buf  hal.Buffer
	size uint64
}

type kernelPipeline struct {
	shader   hal.ShaderModule
	pipeline hal.ComputePipeline
}

// inFlight holds the per-pass resources of a submitted dispatch.
type inFlight struct {
	cmdBuf    hal.CommandBuffer
	uniform   hal.Buffer
	bindGroup hal.BindGroup
}

// Device is a gpucore.Device running kernels on a wgpu/hal compute queue.
//
// The zero value is unusable until Init succeeds. Device is safe for
// concurrent use; calls are serialized.
type Device struct {
	mu     sync.Mutex
	logger atomic.Pointer[slog.Logger]

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	fence    hal.Fence

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	kernels    map[gpucore.Kernel]*kernelPipeline
	dummy      hal.Buffer

	buffers   map[gpucore.BufferID]*deviceBuffer
	nextID    gpucore.BufferID
	liveBytes uint64

	submitted  uint64
	pending    []inFlight
	graveyard  []hal.Buffer
	uploads    uint64
	dispatches uint64
	readbacks  uint64

	adapterName    string
	gpuReady       bool
	externalDevice bool // true when using shared device (don't destroy on Close)
}

var _ gpucore.Device = (*Device)(nil)

// New returns an uninitialized device.
func New() *Device {
	return &Device{}
}

// Name returns "wgpu".
func (d *Device) Name() string { return "wgpu" }

// Capabilities reports compute support once the device is initialized.
func (d *Device) Capabilities() gpucore.Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpucore.Capabilities{
		SupportsCompute: d.gpuReady,
		NativeBitwise:   true,
		MaxBufferCells:  MaxBufferCells,
		DeviceName:      d.adapterName,
	}
}

// SetLogger sets the logger used by the device. Called by qsim.SetLogger.
func (d *Device) SetLogger(l *slog.Logger) {
	d.logger.Store(l)
}

// Init opens a Vulkan device on the first discrete or integrated adapter
// and builds the kernel pipelines.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpuReady {
		return nil
	}
	if err := d.initGPU(); err != nil {
		d.destroyAllLocked()
		return err
	}
	return nil
}

func (d *Device) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan backend not available", ErrDeviceNotReady)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("%w: no GPU adapters found", ErrDeviceNotReady)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapterName = selected.Info.Name
	if err := d.createPipelines(); err != nil {
		return fmt.Errorf("create pipelines: %w", err)
	}
	d.gpuReady = true
	d.log().Info("wgpu compute device initialized", "adapter", d.adapterName)
	return nil
}

// SetDeviceProvider switches the device to a shared GPU device from an
// external provider (e.g., gogpu). The provider must be a
// gpucontext.DeviceProvider that also exposes HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
//
// Buffers created before the switch are dropped.
func (d *Device) SetDeviceProvider(provider any) error {
	type halProvider interface {
		gpucontext.DeviceProvider
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyAllLocked()
	d.device = device
	d.queue = queue
	d.externalDevice = true
	d.adapterName = "shared"

	if err := d.createPipelines(); err != nil {
		d.gpuReady = false
		return fmt.Errorf("wgpu: create pipelines with shared device: %w", err)
	}
	d.gpuReady = true
	d.log().Info("wgpu compute device switched to shared GPU device")
	return nil
}

func (d *Device) createPipelines() error {
	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "qsim_kernel_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	d.bindLayout = bindLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "qsim_kernel_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout

	d.kernels = make(map[gpucore.Kernel]*kernelPipeline, len(kernelSources))
	for _, k := range Kernels() {
		src, err := KernelSource(k)
		if err != nil {
			return err
		}
		shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  k.String(),
			Source: hal.ShaderSource{WGSL: src},
		})
		if err != nil {
			return fmt.Errorf("compile %s shader: %w", k, err)
		}
		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label: k.String(), Layout: d.pipeLayout,
			Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
		})
		if err != nil {
			d.device.DestroyShaderModule(shader)
			return fmt.Errorf("create %s pipeline: %w", k, err)
		}
		d.kernels[k] = &kernelPipeline{shader: shader, pipeline: pipeline}
	}

	// Bound to the input slots a kernel does not read.
	d.dummy, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "qsim_unused_input", Size: gpucore.CellBytes,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("create placeholder buffer: %w", err)
	}

	d.fence, err = d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	d.submitted = 0
	if d.buffers == nil {
		d.buffers = make(map[gpucore.BufferID]*deviceBuffer)
	}
	return nil
}

func (d *Device) checkReady() error {
	if !d.gpuReady {
		return ErrDeviceNotReady
	}
	return nil
}

func (d *Device) createStorage(label string, cells int) (hal.Buffer, uint64, error) {
	if cells > MaxBufferCells {
		return nil, 0, fmt.Errorf("%w: %d cells", ErrBufferTooLarge, cells)
	}
	size := uint64(cells) * gpucore.CellBytes //nolint:gosec // cells is positive
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, size, nil
}

func (d *Device) track(buf hal.Buffer, size uint64, width, height int) gpucore.Buffer {
	d.nextID++
	d.buffers[d.nextID] = &deviceBuffer{buf: buf, size: size}
	d.liveBytes += size
	return gpucore.Buffer{ID: d.nextID, Width: width, Height: height, Format: gpucore.TextureFormatRGBA32Float}
}

// Upload copies cells into a new storage buffer.
func (d *Device) Upload(width, height int, cells []float32) (gpucore.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkReady(); err != nil {
		return gpucore.Buffer{}, err
	}
	if want := width * height * gpucore.Channels; width <= 0 || height <= 0 || len(cells) != want {
		return gpucore.Buffer{}, fmt.Errorf("wgpu: upload of %d values into %dx%d buffer", len(cells), width, height)
	}
	buf, size, err := d.createStorage("qsim_upload", width*height)
	if err != nil {
		return gpucore.Buffer{}, err
	}
	d.queue.WriteBuffer(buf, 0, cellsToBytes(cells))
	d.uploads++
	return d.track(buf, size, width, height), nil
}

// Dispatch encodes call as one compute pass and submits it.
func (d *Device) Dispatch(call gpucore.KernelCall) (gpucore.Buffer, error) {
	if err := call.Validate(); err != nil {
		return gpucore.Buffer{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkReady(); err != nil {
		return gpucore.Buffer{}, err
	}
	kp, ok := d.kernels[call.Kernel]
	if !ok {
		return gpucore.Buffer{}, fmt.Errorf("%w: %s", ErrUnsupportedKernel, call.Kernel)
	}
	inputs := [2]*deviceBuffer{}
	for i, in := range call.Inputs {
		db, ok := d.buffers[in.ID]
		if !ok {
			return gpucore.Buffer{}, fmt.Errorf("%w: %s input %d (%s)", ErrUnknownBuffer, call.Kernel, i, in)
		}
		inputs[i] = db
	}

	outBuf, outSize, err := d.createStorage(call.Kernel.String(), call.Len())
	if err != nil {
		return gpucore.Buffer{}, err
	}
	work, err := d.encodePass(kp, &call, inputs, outBuf, outSize)
	if err != nil {
		d.device.DestroyBuffer(outBuf)
		return gpucore.Buffer{}, err
	}
	d.pending = append(d.pending, work)
	d.dispatches++
	out := d.track(outBuf, outSize, call.Width, call.Height)

	if len(d.pending) >= maxInFlight {
		if err := d.waitLocked(); err != nil {
			d.releaseLocked(out.ID)
			return gpucore.Buffer{}, err
		}
	}
	return out, nil
}

func (d *Device) encodePass(kp *kernelPipeline, call *gpucore.KernelCall, inputs [2]*deviceBuffer, outBuf hal.Buffer, outSize uint64) (inFlight, error) {
	gx, gy, stride := dispatchGrid(call.Len())

	uniform, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "qsim_call", Size: uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return inFlight{}, fmt.Errorf("create uniform buffer: %w", err)
	}
	d.queue.WriteBuffer(uniform, 0, packUniform(call, stride))

	binding := func(db *deviceBuffer) gputypes.BufferBinding {
		if db == nil {
			return gputypes.BufferBinding{Buffer: d.dummy.NativeHandle(), Offset: 0, Size: gpucore.CellBytes}
		}
		return gputypes.BufferBinding{Buffer: db.buf.NativeHandle(), Offset: 0, Size: db.size}
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "qsim_call_bind", Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniform.NativeHandle(), Offset: 0, Size: uniformSize}},
			{Binding: 1, Resource: binding(inputs[0])},
			{Binding: 2, Resource: binding(inputs[1])},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: outBuf.NativeHandle(), Offset: 0, Size: outSize}},
		},
	})
	if err != nil {
		d.device.DestroyBuffer(uniform)
		return inFlight{}, fmt.Errorf("create bind group: %w", err)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "qsim_call_encoder"})
	if err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(uniform)
		return inFlight{}, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(call.Kernel.String()); err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(uniform)
		return inFlight{}, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: call.Kernel.String()})
	pass.SetPipeline(kp.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(gx, gy, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(uniform)
		return inFlight{}, fmt.Errorf("end encoding: %w", err)
	}

	d.submitted++
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, d.fence, d.submitted); err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(uniform)
		return inFlight{}, fmt.Errorf("submit: %w", err)
	}
	d.log().Debug("wgpu dispatch", "kernel", call.Kernel.String(), "cells", call.Len(), "groups_x", gx, "groups_y", gy)
	return inFlight{cmdBuf: cmdBuf, uniform: uniform, bindGroup: bg}, nil
}

// waitLocked blocks until every submitted pass has completed, then frees
// their resources and the buffers released meanwhile.
func (d *Device) waitLocked() error {
	if d.submitted > 0 {
		ok, err := d.device.Wait(d.fence, d.submitted, waitTimeout)
		if err != nil || !ok {
			return fmt.Errorf("wgpu: wait for GPU: ok=%v err=%w", ok, err)
		}
	}
	for _, w := range d.pending {
		d.device.FreeCommandBuffer(w.cmdBuf)
		d.device.DestroyBindGroup(w.bindGroup)
		d.device.DestroyBuffer(w.uniform)
	}
	d.pending = d.pending[:0]
	for _, b := range d.graveyard {
		d.device.DestroyBuffer(b)
	}
	d.graveyard = d.graveyard[:0]
	return nil
}

// Read waits for all submitted work and copies buf back to the host.
func (d *Device) Read(buf gpucore.Buffer) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkReady(); err != nil {
		return nil, err
	}
	db, ok := d.buffers[buf.ID]
	if !ok {
		return nil, fmt.Errorf("%w: read of %s", ErrUnknownBuffer, buf)
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "qsim_staging", Size: db.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "qsim_readback_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("qsim_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(db.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: db.size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	d.submitted++
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, d.fence, d.submitted); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := d.waitLocked(); err != nil {
		return nil, err
	}

	data := make([]byte, db.size)
	if err := d.queue.ReadBuffer(staging, 0, data); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	d.readbacks++
	return bytesToCells(data), nil
}

// Release drops buf. Its storage is destroyed once no submitted pass can
// still read it.
func (d *Device) Release(buf gpucore.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(buf.ID)
}

func (d *Device) releaseLocked(id gpucore.BufferID) {
	db, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.liveBytes -= db.size
	if len(d.pending) > 0 {
		d.graveyard = append(d.graveyard, db.buf)
		return
	}
	d.device.DestroyBuffer(db.buf)
}

// Stats returns resource and synchronization counters.
func (d *Device) Stats() gpucore.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpucore.Stats{
		Uploads:     d.uploads,
		Dispatches:  d.dispatches,
		Readbacks:   d.readbacks,
		LiveBuffers: len(d.buffers),
		LiveBytes:   d.liveBytes,
	}
}

// Close waits for outstanding work and destroys all GPU resources. A shared
// device from SetDeviceProvider is left alive.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyAllLocked()
}

func (d *Device) destroyAllLocked() {
	if d.device != nil {
		if d.gpuReady {
			if err := d.waitLocked(); err != nil {
				d.log().Warn("wgpu: close without idle GPU", "err", err)
			}
		}
		for id, db := range d.buffers {
			d.device.DestroyBuffer(db.buf)
			delete(d.buffers, id)
		}
		for _, kp := range d.kernels {
			d.device.DestroyComputePipeline(kp.pipeline)
			d.device.DestroyShaderModule(kp.shader)
		}
		if d.pipeLayout != nil {
			d.device.DestroyPipelineLayout(d.pipeLayout)
		}
		if d.bindLayout != nil {
			d.device.DestroyBindGroupLayout(d.bindLayout)
		}
		if d.dummy != nil {
			d.device.DestroyBuffer(d.dummy)
		}
		if d.fence != nil {
			d.device.DestroyFence(d.fence)
		}
		if !d.externalDevice {
			d.device.Destroy()
		}
	}
	if d.instance != nil && !d.externalDevice {
		d.instance.Destroy()
	}
	d.instance, d.device, d.queue, d.fence = nil, nil, nil, nil
	d.kernels, d.pipeLayout, d.bindLayout, d.dummy = nil, nil, nil, nil
	d.pending, d.graveyard = nil, nil
	d.liveBytes = 0
	d.gpuReady = false
	d.externalDevice = false
}
