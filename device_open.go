// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// OpenDevice opens the preferred adapter of a registered hal backend:
// a discrete GPU, else an integrated GPU, else the first adapter.
// The returned GPUDevice owns the hal device and destroys it on Close.
func OpenDevice(backend gputypes.Backend, opts ...DeviceOption) (*GPUDevice, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not available", ErrNoDevice, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return openFromInstance(instance, opts)
}

// OpenNoopDevice opens the hal noop backend. Transfers succeed without
// touching real hardware, which suits headless tests and dry runs.
func OpenNoopDevice(opts ...DeviceOption) (*GPUDevice, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	return openFromInstance(instance, opts)
}

func openFromInstance(instance hal.Instance, opts []DeviceOption) (*GPUDevice, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrNoDevice)
	}

	var selected *hal.ExposedAdapter
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				selected = &adapters[i]
				break
			}
		}
		if selected != nil {
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	name := selected.Info.Name
	if name == "" {
		name = "device"
	}
	all := append([]DeviceOption{WithDeviceName(name), WithDeviceLimits(limits)}, opts...)
	d := newDevice(instance, openDev.Device, openDev.Queue, true, all)
	Logger().Info("gpubuf: device opened", "adapter", name)
	return d, nil
}

// DeviceFromProvider borrows the device of a host application. The provider
// must also expose HalDevice() and HalQueue() returning hal.Device and
// hal.Queue, as gogpu does. Close leaves the provider's device alive.
func DeviceFromProvider(provider gpucontext.DeviceProvider, opts ...DeviceOption) (*GPUDevice, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider %T does not expose hal access", ErrNoDevice, provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNilHALDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNilHALDevice)
	}
	return NewDevice(device, queue, opts...)
}
