// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"errors"
	"fmt"
	"testing"
	"unsafe"

	"github.com/gogpu/wgpu/hal"
)

// fakeGPU is an in-memory hal device and queue that keeps buffer contents
// and executes recorded copies on Submit. Methods gpubuf never calls are
// left to the embedded nil interfaces.
type fakeGPU struct {
	live      int
	submitted uint64
	completed uint64

	// deferred leaves submissions pending until WaitIdle.
	deferred bool

	writeErr error
	mapErr   error
}

type fakeBuffer struct {
	data      []byte
	destroyed bool
}

func (b *fakeBuffer) Destroy()              { b.destroyed = true }
func (b *fakeBuffer) NativeHandle() uintptr { return uintptr(unsafe.Pointer(b)) }

type fakeDevice struct {
	hal.Device
	gpu *fakeGPU
}

func (d fakeDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.gpu.live++
	return &fakeBuffer{data: make([]byte, desc.Size)}, nil
}

func (d fakeDevice) DestroyBuffer(buffer hal.Buffer) {
	d.gpu.live--
	buffer.Destroy()
}

func (d fakeDevice) MapBuffer(buffer hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	if d.gpu.mapErr != nil {
		return hal.BufferMapping{}, d.gpu.mapErr
	}
	b := buffer.(*fakeBuffer)
	if size == 0 || offset+size > uint64(len(b.data)) {
		return hal.BufferMapping{}, hal.ErrInvalidMapRange
	}
	return hal.BufferMapping{Ptr: unsafe.Pointer(&b.data[offset]), IsCoherent: true}, nil
}

func (d fakeDevice) UnmapBuffer(hal.Buffer) error { return nil }

func (d fakeDevice) CreateCommandEncoder(*hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return &fakeEncoder{}, nil
}

func (d fakeDevice) FreeCommandBuffer(hal.CommandBuffer) {}

func (d fakeDevice) WaitIdle() error {
	d.gpu.completed = d.gpu.submitted
	return nil
}

func (d fakeDevice) Destroy() {}

type fakeCopy struct {
	src, dst *fakeBuffer
	region   hal.BufferCopy
}

type fakeEncoder struct {
	hal.CommandEncoder
	copies []fakeCopy
}

func (e *fakeEncoder) BeginEncoding(string) error { return nil }

func (e *fakeEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	for _, r := range regions {
		e.copies = append(e.copies, fakeCopy{src: src.(*fakeBuffer), dst: dst.(*fakeBuffer), region: r})
	}
}

func (e *fakeEncoder) EndEncoding() (hal.CommandBuffer, error) {
	return &fakeCommands{copies: e.copies}, nil
}

type fakeCommands struct{ copies []fakeCopy }

func (c *fakeCommands) Destroy() {}

type fakeQueue struct {
	hal.Queue
	gpu *fakeGPU
}

func (q fakeQueue) Submit(commandBuffers []hal.CommandBuffer) (uint64, error) {
	for _, cb := range commandBuffers {
		for _, c := range cb.(*fakeCommands).copies {
			r := c.region
			if r.SrcOffset+r.Size > uint64(len(c.src.data)) || r.DstOffset+r.Size > uint64(len(c.dst.data)) {
				return 0, fmt.Errorf("fake queue: copy of %d bytes out of range", r.Size)
			}
			copy(c.dst.data[r.DstOffset:r.DstOffset+r.Size], c.src.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
	q.gpu.submitted++
	if !q.gpu.deferred {
		q.gpu.completed = q.gpu.submitted
	}
	return q.gpu.submitted, nil
}

func (q fakeQueue) PollCompleted() uint64 { return q.gpu.completed }

func (q fakeQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	if q.gpu.writeErr != nil {
		return q.gpu.writeErr
	}
	b := buffer.(*fakeBuffer)
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return errors.New("fake queue: write out of range")
	}
	copy(b.data[offset:], data)
	return nil
}

// newFakeDevice wraps a fresh fakeGPU in a GPUDevice closed when the test ends.
func newFakeDevice(t *testing.T, opts ...DeviceOption) (*GPUDevice, *fakeGPU) {
	t.Helper()
	gpu := &fakeGPU{}
	d, err := NewDevice(fakeDevice{gpu: gpu}, fakeQueue{gpu: gpu}, opts...)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(d.Close)
	return d, gpu
}
