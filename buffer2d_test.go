// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"errors"
	"runtime"
	"slices"
	"testing"
)

func TestBuffer2DLifecycleCounter(t *testing.T) {
	b := NewBuffer2D[float32](Host, "Running Estimate")
	defer b.Close()

	if b.ModifiedTime() != 0 || b.ElementCount() != 0 || b.Storage() != nil {
		t.Fatal("new buffer should be empty with counter 0")
	}

	if err := b.Resize(Res(4, 3)); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if b.ElementCount() != 12 || b.ByteCount() != 48 || b.ModifiedTime() != 1 {
		t.Fatalf("after Resize: count=%d bytes=%d counter=%d", b.ElementCount(), b.ByteCount(), b.ModifiedTime())
	}

	if err := b.Resize(Res(4, 3)); err != nil {
		t.Fatalf("idempotent Resize: %v", err)
	}
	if b.ModifiedTime() != 1 {
		t.Errorf("resize to current resolution bumped counter to %d", b.ModifiedTime())
	}

	for i := range b.Data() {
		b.Data()[i] = 9
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.ModifiedTime() != 2 {
		t.Errorf("counter after Reset = %d, want 2", b.ModifiedTime())
	}
	for i, v := range b.Data() {
		if v != 0 {
			t.Fatalf("element %d = %v after Reset", i, v)
		}
	}

	b.Free()
	if b.Resolution() != (Resolution{}) || b.Storage() != nil || b.ModifiedTime() != 3 {
		t.Fatalf("after Free: res=%v storage=%v counter=%d", b.Resolution(), b.Storage(), b.ModifiedTime())
	}

	b.Free()
	if b.ModifiedTime() != 4 {
		t.Errorf("Free on empty buffer should still bump, counter = %d", b.ModifiedTime())
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset on empty buffer: %v", err)
	}
	if b.ModifiedTime() != 5 {
		t.Errorf("Reset on empty buffer should still bump, counter = %d", b.ModifiedTime())
	}
}

func TestBuffer2DResizeNormalizes(t *testing.T) {
	b := NewBuffer2D[float32](Host, "n")
	defer b.Close()

	if err := b.Resize(Res(-2, 5)); err != nil {
		t.Fatal(err)
	}
	if b.ModifiedTime() != 0 {
		t.Error("empty resize of an empty buffer should not bump")
	}

	if err := b.Resize(Res(2, 2)); err != nil {
		t.Fatal(err)
	}
	if err := b.Resize(Res(3, 0)); err != nil {
		t.Fatal(err)
	}
	if b.Resolution() != (Resolution{}) || b.Storage() != nil {
		t.Errorf("resize to 3x0 should empty the buffer, got %v", b.Resolution())
	}
	if b.ModifiedTime() != 2 {
		t.Errorf("counter = %d, want 2", b.ModifiedTime())
	}
}

func TestBuffer2DAccessors(t *testing.T) {
	b := NewBuffer2D[int32](Host, "grid")
	defer b.Close()
	if err := b.Resize(Res(4, 3)); err != nil {
		t.Fatal(err)
	}

	*b.At(2, 1) = 42
	if got := *b.Index(1*4 + 2); got != 42 {
		t.Errorf("Index(6) = %d, want 42", got)
	}
	if got, err := b.Get(2, 1); err != nil || got != 42 {
		t.Errorf("Get(2, 1) = %d, %v", got, err)
	}
	if err := b.Put(3, 2, 7); err != nil {
		t.Fatal(err)
	}
	if got, err := b.GetIndex(11); err != nil || got != 7 {
		t.Errorf("GetIndex(11) = %d, %v", got, err)
	}
	if b.ModifiedTime() != 1 {
		t.Errorf("element writes should not bump the counter, got %d", b.ModifiedTime())
	}

	_, err := b.Get(4, 0)
	var ie *IndexError
	if !errors.As(err, &ie) || ie.X != 4 || ie.Resolution != Res(4, 3) {
		t.Errorf("Get(4, 0) error = %v", err)
	}
	if err := b.Put(0, -1, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Put(0, -1) error = %v", err)
	}
	if _, err := b.GetIndex(12); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("GetIndex(12) error = %v", err)
	}
}

func TestBuffer2DSetSliceRoundTrip(t *testing.T) {
	b := NewBuffer2D[float32](Host, "set")
	defer b.Close()

	data := []float32{1, 2, 3, 4, 5, 6}
	if err := b.SetSlice(Res(3, 2), data); err != nil {
		t.Fatalf("SetSlice: %v", err)
	}
	// Resize from empty and the copy each bump once.
	if b.ModifiedTime() != 2 {
		t.Errorf("counter = %d, want 2", b.ModifiedTime())
	}

	data[0] = 100
	got := make([]float32, 6)
	if err := b.ReadInto(got); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !slices.Equal(got, []float32{1, 2, 3, 4, 5, 6}) {
		t.Errorf("ReadInto = %v", got)
	}

	if err := b.ReadInto(make([]float32, 2)); !errors.Is(err, ErrCopyOutOfRange) {
		t.Errorf("short ReadInto error = %v", err)
	}
}

func TestBuffer2DSetErrors(t *testing.T) {
	b := NewBuffer2D[float32](Host, "set errors")
	defer b.Close()

	if err := b.SetSlice(Res(4, 4), make([]float32, 3)); !errors.Is(err, ErrSourceTooSmall) {
		t.Errorf("short source error = %v", err)
	}
	counter := b.ModifiedTime()
	if err := b.Set(Res(2, 2), nil); !errors.Is(err, ErrNilStorage) {
		t.Errorf("nil source error = %v", err)
	}
	if b.ModifiedTime() <= counter {
		t.Error("a failed Set should still bump the counter")
	}
	if err := b.Set(Res(0, 0), nil); err != nil {
		t.Errorf("empty Set from nil: %v", err)
	}
}

func TestBuffer2DCopyFrom(t *testing.T) {
	src := NewBuffer2D[uint16](Host, "Seeds")
	defer src.Close()
	if err := src.SetSlice(Res(2, 2), []uint16{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	dst := NewBuffer2D[uint16](Host, "other")
	defer dst.Close()
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}

	if dst.Name() != "Copy of Seeds" {
		t.Errorf("Name() = %q, want %q", dst.Name(), "Copy of Seeds")
	}
	if dst.Resolution() != src.Resolution() {
		t.Errorf("Resolution() = %v, want %v", dst.Resolution(), src.Resolution())
	}
	*src.At(0, 0) = 99
	if got := *dst.At(0, 0); got != 1 {
		t.Errorf("copy aliases source: dst[0] = %d", got)
	}
	if dst.Storage() == src.Storage() {
		t.Error("copies must not share storage")
	}

	if err := dst.CopyFrom(dst); err != nil {
		t.Errorf("self copy: %v", err)
	}
	if dst.Name() != "Copy of Seeds" {
		t.Errorf("self copy renamed buffer to %q", dst.Name())
	}
}

func TestBuffer2DCopyFromEmpty(t *testing.T) {
	src := NewBuffer2D[float32](Host, "empty")
	defer src.Close()
	dst := NewBuffer2D[float32](Host, "full")
	defer dst.Close()
	if err := dst.Resize(Res(2, 2)); err != nil {
		t.Fatal(err)
	}

	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom empty: %v", err)
	}
	if dst.ElementCount() != 0 || dst.Storage() != nil {
		t.Error("copying an empty buffer should empty the target")
	}
}

func TestBuffer2DAllocationFailure(t *testing.T) {
	alloc := &HostAllocator{Budget: NewBudget(64)}
	b := NewBuffer2D[float32](Host, "budgeted", WithAllocator(alloc))
	defer b.Close()

	err := b.Resize(Res(10, 10))
	if !errors.Is(err, ErrAllocationFailed) || !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Fatalf("Resize error = %v, want budget allocation failure", err)
	}
	if b.ElementCount() != 0 || b.ModifiedTime() != 0 {
		t.Errorf("failed first allocation changed state: count=%d counter=%d", b.ElementCount(), b.ModifiedTime())
	}

	if err := b.Resize(Res(4, 4)); err != nil {
		t.Fatalf("Resize within budget: %v", err)
	}
	if err := b.Resize(Res(5, 5)); !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("Resize error = %v", err)
	}
	if b.Resolution() != (Resolution{}) || b.Storage() != nil {
		t.Errorf("failed reallocation should leave buffer empty, got %v", b.Resolution())
	}
	if b.ModifiedTime() != 2 {
		t.Errorf("counter = %d, want 2", b.ModifiedTime())
	}
	if got := alloc.Budget.Stats().UsedBytes; got != 0 {
		t.Errorf("budget still holds %d bytes", got)
	}
}

func TestBuffer2DDefaultHostAllocationFailure(t *testing.T) {
	b := NewBuffer2D[float32](Host, "huge")
	defer b.Close()

	if err := b.Resize(Res(2, 2)); err != nil {
		t.Fatal(err)
	}
	err := b.Resize(Res(1<<22, 1<<22))
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("Resize error = %v, want ErrAllocationFailed", err)
	}
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) || allocErr.Location != Host {
		t.Errorf("error %v should carry a host AllocationError", err)
	}
	if b.Resolution() != (Resolution{}) || b.Storage() != nil || b.Data() != nil {
		t.Errorf("failed allocation should leave buffer empty, got %v", b.Resolution())
	}
	if b.ModifiedTime() != 2 {
		t.Errorf("counter = %d, want 2", b.ModifiedTime())
	}
}

func TestBuffer2DOverflowingResolution(t *testing.T) {
	tests := []struct {
		name string
		res  Resolution
	}{
		{"count wraps", Res(maxInt/2+1, 4)},
		{"both huge", Res(maxInt, maxInt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer2D[float32](Host, "overflow")
			defer b.Close()

			err := b.Resize(tt.res)
			if !errors.Is(err, ErrAllocationFailed) || !errors.Is(err, ErrInvalidBufferSize) {
				t.Fatalf("Resize(%v) error = %v, want invalid size allocation failure", tt.res, err)
			}
			if b.Resolution() != (Resolution{}) || b.ElementCount() != 0 {
				t.Errorf("buffer resolution = %v, want empty", b.Resolution())
			}
			if _, err := b.Get(100, 0); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("Get after failed Resize error = %v, want ErrIndexOutOfRange", err)
			}
			if err := b.SetSlice(tt.res, nil); !errors.Is(err, ErrInvalidBufferSize) {
				t.Errorf("SetSlice(%v) error = %v, want ErrInvalidBufferSize", tt.res, err)
			}
		})
	}
}

func TestBuffer2DClosed(t *testing.T) {
	b := NewBuffer2D[uint32](Host, "closed")
	if err := b.Resize(Res(2, 2)); err != nil {
		t.Fatal(err)
	}
	b.Close()
	counter := b.ModifiedTime()

	src := NewBuffer2D[uint32](Host, "src")
	defer src.Close()

	ops := map[string]func() error{
		"Resize":   func() error { return b.Resize(Res(4, 4)) },
		"Set":      func() error { return b.Set(Res(1, 1), WrapHost([]uint32{1})) },
		"SetSlice": func() error { return b.SetSlice(Res(1, 1), []uint32{1}) },
		"Reset":    b.Reset,
		"CopyFrom": func() error { return b.CopyFrom(src) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrBufferClosed) {
			t.Errorf("%s after Close error = %v, want ErrBufferClosed", name, err)
		}
	}
	if b.Storage() != nil || b.ModifiedTime() != counter || b.Name() != "closed" {
		t.Errorf("closed buffer changed: storage=%v counter=%d name=%q", b.Storage(), b.ModifiedTime(), b.Name())
	}
}

func TestBuffer2DZeroOnResize(t *testing.T) {
	pool := NewPool(&HostAllocator{}, 0)

	dirty := NewBuffer2D[uint32](Host, "dirty", WithAllocator(pool))
	if err := dirty.Resize(Res(4, 4)); err != nil {
		t.Fatal(err)
	}
	for i := range dirty.Data() {
		dirty.Data()[i] = 0xFFFFFFFF
	}
	dirty.Close()

	plain := NewBuffer2D[uint32](Host, "plain", WithAllocator(pool))
	if err := plain.Resize(Res(4, 4)); err != nil {
		t.Fatal(err)
	}
	if plain.Data()[0] != 0xFFFFFFFF {
		t.Skip("pool did not hand back the recycled block")
	}
	plain.Close()

	zeroed := NewBuffer2D[uint32](Host, "zeroed", WithAllocator(pool), WithZeroOnResize())
	defer zeroed.Close()
	if err := zeroed.Resize(Res(4, 4)); err != nil {
		t.Fatal(err)
	}
	for i, v := range zeroed.Data() {
		if v != 0 {
			t.Fatalf("element %d = %#x, want zero", i, v)
		}
	}
	if zeroed.ModifiedTime() != 1 {
		t.Errorf("zero-filling resize should bump once, counter = %d", zeroed.ModifiedTime())
	}
}

func TestBuffer2DLargeHostBufferIsMapped(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("mapping checked on linux only")
	}
	b := NewBuffer2D[float32](Host, "large")
	defer b.Close()
	if err := b.Resize(Res(1024, 1024)); err != nil {
		t.Fatal(err)
	}
	if !b.Storage().(*HostStorage).Mapped() {
		t.Error("4 MiB host buffer should be mapped")
	}
	*b.At(1023, 1023) = 1
}

func TestBuffer2DDeviceWithoutDevice(t *testing.T) {
	prev := DefaultDevice()
	SetDefaultDevice(nil)
	t.Cleanup(func() { SetDefaultDevice(prev) })

	b := NewBuffer2D[float32](Device, "orphan")
	defer b.Close()
	if err := b.Resize(Res(2, 2)); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Resize error = %v, want ErrNoDevice", err)
	}
}

func TestBuffer2DAllocatorLocationMismatch(t *testing.T) {
	b := NewBuffer2D[float32](Device, "mismatch", WithAllocator(&HostAllocator{}))
	defer b.Close()
	if err := b.Resize(Res(2, 2)); !errors.Is(err, ErrLocationMismatch) {
		t.Errorf("Resize error = %v, want ErrLocationMismatch", err)
	}
}

func TestBuffer2DElementTypes(t *testing.T) {
	type xyza struct{ X, Y, Z, A float32 }

	b := NewBuffer2D[xyza](Host, "xyza")
	defer b.Close()
	if b.ElementSize() != 16 {
		t.Errorf("ElementSize() = %d, want 16", b.ElementSize())
	}
	if err := b.Resize(Res(2, 1)); err != nil {
		t.Fatal(err)
	}
	b.At(1, 0).Z = 3
	if got, _ := b.Get(1, 0); got.Z != 3 {
		t.Errorf("Z = %v, want 3", got.Z)
	}

	rgba := NewBuffer2D[[4]uint8](Host, "rgba")
	defer rgba.Close()
	if rgba.ElementSize() != 4 {
		t.Errorf("ElementSize() = %d, want 4", rgba.ElementSize())
	}
}

func TestBuffer2DRejectsPointerTypes(t *testing.T) {
	type withString struct {
		V    float32
		Name string
	}
	tests := []struct {
		name string
		fn   func()
	}{
		{"pointer", func() { NewBuffer2D[*int](Host, "p") }},
		{"slice", func() { NewBuffer2D[[]byte](Host, "s") }},
		{"string field", func() { NewBuffer2D[withString](Host, "s") }},
		{"zero size", func() { NewBuffer2D[struct{}](Host, "z") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
