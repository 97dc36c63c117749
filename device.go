// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyBufferAlignment is the granularity of buffer copies and queue writes.
const copyBufferAlignment uint64 = 4

// deviceBufferUsage lets kernels bind the buffer and lets it take part in
// transfers in both directions.
const deviceBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// DeviceStorage is a block of accelerator memory.
type DeviceStorage struct {
	buf  hal.Buffer
	dev  *GPUDevice
	size uint64
}

// Location returns Device.
func (s *DeviceStorage) Location() Location { return Device }

// Size returns the allocated size in bytes, rounded up to the copy alignment.
func (s *DeviceStorage) Size() uint64 { return s.size }

// Raw returns the underlying hal buffer for binding in kernels, or nil once
// the storage has been released.
func (s *DeviceStorage) Raw() hal.Buffer { return s.buf }

// Device returns the device that owns the storage.
func (s *DeviceStorage) Device() *GPUDevice { return s.dev }

// GPUDevice allocates and transfers accelerator memory through gogpu/wgpu hal.
// It implements Allocator for the Device location.
//
// GPUDevice is safe for concurrent use. Transfers are synchronous: each one
// is submitted and waited on before returning.
type GPUDevice struct {
	mu sync.Mutex

	instance hal.Instance // set only for devices opened by this package
	device   hal.Device
	queue    hal.Queue

	name   string
	label  string
	limits gputypes.Limits
	budget *Budget

	owned  bool
	closed bool
}

var _ Allocator = (*GPUDevice)(nil)

// DeviceOption configures a GPUDevice.
type DeviceOption func(*GPUDevice)

// WithDeviceBudget limits the bytes allocated on the device.
func WithDeviceBudget(b *Budget) DeviceOption {
	return func(d *GPUDevice) { d.budget = b }
}

// WithDeviceLabel sets the debug label given to every buffer the device creates.
func WithDeviceLabel(label string) DeviceOption {
	return func(d *GPUDevice) { d.label = label }
}

// WithDeviceLimits overrides the limits used to validate allocation sizes.
func WithDeviceLimits(limits gputypes.Limits) DeviceOption {
	return func(d *GPUDevice) { d.limits = limits }
}

// WithDeviceName sets the name reported by Name.
func WithDeviceName(name string) DeviceOption {
	return func(d *GPUDevice) { d.name = name }
}

// NewDevice wraps a device and queue owned by the caller. Close does not
// destroy them.
func NewDevice(device hal.Device, queue hal.Queue, opts ...DeviceOption) (*GPUDevice, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHALDevice
	}
	return newDevice(nil, device, queue, false, opts), nil
}

func newDevice(instance hal.Instance, device hal.Device, queue hal.Queue, owned bool, opts []DeviceOption) *GPUDevice {
	d := &GPUDevice{
		instance: instance,
		device:   device,
		queue:    queue,
		name:     "device",
		label:    "gpubuf",
		limits:   gputypes.DefaultLimits(),
		owned:    owned,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the adapter name, or "device" if unknown.
func (d *GPUDevice) Name() string { return d.name }

// Limits returns the limits used to validate allocations.
func (d *GPUDevice) Limits() gputypes.Limits { return d.limits }

// Budget returns the device budget, or nil.
func (d *GPUDevice) Budget() *Budget { return d.budget }

// HAL returns the underlying hal device and queue.
func (d *GPUDevice) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Location returns Device.
func (d *GPUDevice) Location() Location { return Device }

// Allocate creates a storage buffer of at least size bytes.
func (d *GPUDevice) Allocate(size uint64) (Storage, error) {
	aligned := alignUp(size, copyBufferAlignment)
	if size == 0 || aligned < size {
		return nil, &AllocationError{Location: Device, Bytes: size, Err: ErrInvalidBufferSize}
	}
	if limit := d.limits.MaxBufferSize; limit > 0 && aligned > limit {
		return nil, &AllocationError{Location: Device, Bytes: size,
			Err: fmt.Errorf("%w: exceeds device maximum of %d bytes", ErrInvalidBufferSize, limit)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, &AllocationError{Location: Device, Bytes: size, Err: ErrDeviceClosed}
	}
	if err := d.budget.Reserve(aligned); err != nil {
		return nil, &AllocationError{Location: Device, Bytes: size, Err: err}
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label,
		Size:  aligned,
		Usage: deviceBufferUsage,
	})
	if err != nil {
		d.budget.Unreserve(aligned)
		return nil, &AllocationError{Location: Device, Bytes: size, Err: err}
	}
	return &DeviceStorage{buf: buf, dev: d, size: aligned}, nil
}

// Zero clears s by writing a zero block through the queue.
func (d *GPUDevice) Zero(s Storage) error {
	ds, err := d.own(s)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if ds.buf == nil {
		return ErrNilStorage
	}
	if err := d.queue.WriteBuffer(ds.buf, 0, make([]byte, ds.size)); err != nil {
		return fmt.Errorf("zero device buffer: %w", err)
	}
	return nil
}

// Release destroys the buffer behind s. Releasing twice is a no-op.
func (d *GPUDevice) Release(s Storage) {
	ds, ok := s.(*DeviceStorage)
	if !ok || ds == nil || ds.dev != d {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ds.buf == nil {
		return
	}
	buf := ds.buf
	ds.buf = nil
	if !d.closed {
		d.device.DestroyBuffer(buf)
	}
	d.budget.Unreserve(ds.size)
}

// Close releases the device if this package opened it. Buffers allocated
// from a closed device must not be used. Close is idempotent.
func (d *GPUDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	clearDefaultDevice(d)

	if d.owned {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	Logger().Info("gpubuf: device closed", "name", d.name)
}

func (d *GPUDevice) own(s Storage) (*DeviceStorage, error) {
	ds, ok := s.(*DeviceStorage)
	if !ok || ds == nil {
		return nil, fmt.Errorf("%w: device cannot operate on %T", ErrLocationMismatch, s)
	}
	if ds.dev != d {
		return nil, fmt.Errorf("%w: storage belongs to another device", ErrLocationMismatch)
	}
	return ds, nil
}

// upload writes host bytes to the start of dst.
func (d *GPUDevice) upload(dst *DeviceStorage, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if dst.buf == nil {
		return ErrNilStorage
	}
	data := src
	if rem := uint64(len(src)) % copyBufferAlignment; rem != 0 {
		// Queue writes must cover whole words; a padded tail lands in the
		// rounded-up part of the allocation.
		data = make([]byte, alignUp(uint64(len(src)), copyBufferAlignment))
		copy(data, src)
	}
	if err := d.queue.WriteBuffer(dst.buf, 0, data); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// download reads len(dst) bytes from the start of src through a mappable
// staging buffer.
func (d *GPUDevice) download(src *DeviceStorage, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if src.buf == nil {
		return ErrNilStorage
	}

	size := alignUp(uint64(len(dst)), copyBufferAlignment)
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	if err := d.submitCopy(src.buf, staging, size, "gpubuf_readback"); err != nil {
		return err
	}

	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// copyBuffer copies size bytes between two buffers of this device.
func (d *GPUDevice) copyBuffer(dst, src *DeviceStorage, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if src.buf == nil || dst.buf == nil {
		return ErrNilStorage
	}
	return d.submitCopy(src.buf, dst.buf, alignUp(size, copyBufferAlignment), "gpubuf_copy")
}

// submitCopy encodes one buffer copy, submits it and waits until the queue
// reports the submission complete. The caller holds d.mu.
func (d *GPUDevice) submitCopy(src, dst hal.Buffer, size uint64, label string) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	encoder.CopyBufferToBuffer(src, dst, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	index, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if d.queue.PollCompleted() >= index {
		return nil
	}
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if done := d.queue.PollCompleted(); done < index {
		return fmt.Errorf("wait for GPU: submission %d not complete (last completed %d)", index, done)
	}
	return nil
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// defaultDevice serves device buffers that were not given an allocator.
var defaultDevice atomic.Pointer[GPUDevice]

// SetDefaultDevice sets the device used by device-located buffers created
// without WithAllocator. Pass nil to clear it.
func SetDefaultDevice(d *GPUDevice) {
	defaultDevice.Store(d)
}

// DefaultDevice returns the default device, or nil.
func DefaultDevice() *GPUDevice {
	return defaultDevice.Load()
}

func clearDefaultDevice(d *GPUDevice) {
	defaultDevice.CompareAndSwap(d, nil)
}
