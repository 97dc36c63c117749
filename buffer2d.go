// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"unsafe"
)

// Buffer2D is a width×height array of T stored in one location, row-major
// with x varying fastest.
//
// A Buffer2D exclusively owns its storage. Copies between buffers always
// duplicate element data. Every state-changing operation bumps a
// modification counter that consumers use as a cheap dirty check.
//
// Buffer2D is not safe for concurrent use. Callers serialize Resize, Reset,
// Free, Set and CopyFrom against element access on the same buffer.
//
// T must be pointer-free: numbers, arrays and structs of them. Device
// memory and mapped host blocks cannot hold Go pointers.
type Buffer2D[T any] struct {
	meta *bufferMeta
	loc  Location

	alloc Allocator // configured allocator, nil for the location default
	fill  fillStrategy[T]

	res   Resolution
	lease *lease
	host  []T // typed view of host storage, nil for device storage

	modified uint64

	cleanup runtime.Cleanup
	closed  bool
}

// fillStrategy is how Resize populates storage.
type fillStrategy[T any] struct {
	// zero clears storage after each reallocation.
	zero bool

	// draw, if set, regenerates every element on the host on every Resize,
	// including resizes to the current resolution.
	draw func([]T)
}

// lease pairs storage with the allocator that must release it. It lives
// apart from the buffer so a leaked buffer's storage can still be released.
type lease struct {
	alloc   Allocator
	storage Storage
}

func (l *lease) release() {
	if l.storage != nil {
		l.alloc.Release(l.storage)
	}
	l.alloc = nil
	l.storage = nil
}

// NewBuffer2D creates an empty buffer at loc. It holds no storage until
// the first Resize or Set.
//
// NewBuffer2D panics if T contains pointers.
func NewBuffer2D[T any](loc Location, name string, opts ...Option) *Buffer2D[T] {
	o := collectOptions(opts)
	return newBuffer2D(loc, name, fillStrategy[T]{zero: o.zeroOnResize}, o)
}

func newBuffer2D[T any](loc Location, name string, fill fillStrategy[T], o options) *Buffer2D[T] {
	mustBePlain[T]()

	b := &Buffer2D[T]{
		meta:  registerBuffer(name, loc),
		loc:   loc,
		alloc: o.alloc,
		fill:  fill,
		lease: &lease{},
	}
	b.cleanup = runtime.AddCleanup(b, releaseLeaked, leaked{meta: b.meta, lease: b.lease})
	b.debug("gpubuf: create")
	return b
}

type leaked struct {
	meta  *bufferMeta
	lease *lease
}

func releaseLeaked(l leaked) {
	Logger().Warn("gpubuf: buffer collected without Close", "buffer", l.meta.identity().FullName())
	l.lease.release()
	unregisterBuffer(l.meta)
}

// Name returns the buffer name.
func (b *Buffer2D[T]) Name() string { return b.meta.identity().Name }

// FullName returns the qualified diagnostic name.
func (b *Buffer2D[T]) FullName() string { return b.meta.identity().FullName() }

// Identity returns the buffer identity.
func (b *Buffer2D[T]) Identity() Identity { return b.meta.identity() }

// Location returns the memory space of the buffer.
func (b *Buffer2D[T]) Location() Location { return b.loc }

// Resolution returns the current resolution, (0, 0) when empty.
func (b *Buffer2D[T]) Resolution() Resolution { return b.res }

// ModifiedTime returns the modification counter. It only grows.
func (b *Buffer2D[T]) ModifiedTime() uint64 { return b.modified }

// Storage returns the current storage, nil when empty. Kernels bind it;
// it stays valid until the next Resize, Set, Free or Close.
func (b *Buffer2D[T]) Storage() Storage { return b.lease.storage }

// ElementCount returns width*height.
func (b *Buffer2D[T]) ElementCount() int { return b.res.Count() }

// ElementSize returns the size of one element in bytes.
func (b *Buffer2D[T]) ElementSize() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// ByteCount returns width*height*ElementSize.
func (b *Buffer2D[T]) ByteCount() uint64 {
	return uint64(b.res.Count()) * b.ElementSize()
}

// Resize reallocates the buffer for r. Resolutions without elements make
// the buffer empty. Resizing to the current resolution does nothing.
//
// New storage is left as the allocator returns it unless the buffer was
// created WithZeroOnResize. Random seed buffers instead redraw every
// element on every call.
//
// On allocation failure the buffer is left empty and the error matches
// ErrAllocationFailed. A resolution whose element count overflows int
// fails the same way, wrapping ErrInvalidBufferSize.
func (b *Buffer2D[T]) Resize(r Resolution) error {
	if b.closed {
		return fmt.Errorf("resize %s: %w", b.FullName(), ErrBufferClosed)
	}
	if b.fill.draw != nil {
		return b.redraw(r)
	}
	return b.resize(r, b.fill.zero)
}

func (b *Buffer2D[T]) resize(r Resolution, zero bool) error {
	r = r.Normalize()
	b.debug("gpubuf: resize", "resolution", r.String())

	if r == b.res {
		return nil
	}

	hadStorage := b.lease.storage != nil
	b.release()

	if r.Empty() {
		b.modified++
		b.sync()
		return nil
	}

	var (
		alloc Allocator
		s     Storage
		err   error
	)
	if r.Overflows() {
		err = &AllocationError{Location: b.loc,
			Err: fmt.Errorf("%w: %s elements overflow int", ErrInvalidBufferSize, r)}
	} else if alloc, err = b.allocator(); err != nil {
		err = &AllocationError{Location: b.loc, Bytes: uint64(r.Count()) * b.ElementSize(), Err: err}
	} else {
		s, err = allocateElements(alloc, uint64(r.Count()), b.ElementSize())
	}
	if err == nil && zero {
		if err = alloc.Zero(s); err != nil {
			alloc.Release(s)
		}
	}
	if err != nil {
		if hadStorage {
			b.modified++
		}
		b.sync()
		return fmt.Errorf("resize %s to %s: %w", b.FullName(), r, err)
	}

	b.res = r
	b.lease.alloc = alloc
	b.lease.storage = s
	if hs, ok := s.(*HostStorage); ok {
		b.host = bytesAs[T](hs.Bytes(), r.Count())
	}
	b.modified++
	b.sync()
	return nil
}

func allocateElements(a Allocator, count, elemSize uint64) (Storage, error) {
	if count > ^uint64(0)/elemSize {
		return nil, &AllocationError{Location: a.Location(), Err: ErrInvalidBufferSize}
	}
	return a.Allocate(count * elemSize)
}

// redraw regenerates every element in host staging memory and installs
// the result. Staging comes from DefaultHostAllocator so that oversized
// requests fail as allocation errors.
func (b *Buffer2D[T]) redraw(r Resolution) error {
	r = r.Normalize()
	if r.Empty() || r.Overflows() {
		return b.Set(r, nil)
	}
	staging, err := allocateElements(DefaultHostAllocator, uint64(r.Count()), b.ElementSize())
	if err != nil {
		if b.lease.storage != nil {
			b.release()
			b.modified++
			b.sync()
		}
		return fmt.Errorf("resize %s to %s: %w", b.FullName(), r, err)
	}
	defer DefaultHostAllocator.Release(staging)

	b.fill.draw(bytesAs[T](staging.(*HostStorage).Bytes(), r.Count()))
	return b.Set(r, staging)
}

// Reset zero-fills the storage. The counter is bumped even when the
// buffer is empty.
func (b *Buffer2D[T]) Reset() error {
	if b.closed {
		return fmt.Errorf("reset %s: %w", b.FullName(), ErrBufferClosed)
	}
	b.debug("gpubuf: reset")

	var err error
	if b.ElementCount() > 0 {
		err = b.lease.alloc.Zero(b.lease.storage)
	}
	b.modified++
	if err != nil {
		return fmt.Errorf("reset %s: %w", b.FullName(), err)
	}
	return nil
}

// Free releases the storage and empties the buffer. Free on an empty
// buffer only bumps the counter.
func (b *Buffer2D[T]) Free() {
	b.debug("gpubuf: free")
	b.release()
	b.modified++
	b.sync()
}

// Close frees the buffer and removes it from the live registry. The buffer
// must not be used afterwards. Close is idempotent.
func (b *Buffer2D[T]) Close() {
	if b.closed {
		return
	}
	b.Free()
	b.closed = true
	b.cleanup.Stop()
	unregisterBuffer(b.meta)
}

// Set resizes the buffer to r and copies r.Count() elements from src,
// which may live at either location. The counter is bumped after the copy
// attempt whether or not it succeeded.
func (b *Buffer2D[T]) Set(r Resolution, src Storage) error {
	if b.closed {
		return fmt.Errorf("set %s: %w", b.FullName(), ErrBufferClosed)
	}
	r = r.Normalize()
	b.debug("gpubuf: set", "resolution", r.String())

	err := b.resize(r, false)
	if err == nil && r.Count() > 0 {
		n := b.ByteCount()
		switch {
		case isNilStorage(src):
			err = ErrNilStorage
		case src.Size() < n:
			err = fmt.Errorf("%w: %d bytes given, %s of %d-byte elements needs %d",
				ErrSourceTooSmall, src.Size(), r, b.ElementSize(), n)
		default:
			err = Copy(b.lease.storage, src, n)
		}
	}
	b.modified++
	b.sync()
	if err != nil {
		return fmt.Errorf("set %s: %w", b.FullName(), err)
	}
	return nil
}

// SetSlice is Set with a host slice as the source. data must hold at
// least r.Count() elements.
func (b *Buffer2D[T]) SetSlice(r Resolution, data []T) error {
	return b.Set(r, WrapHost(data))
}

// CopyFrom makes b an element-wise copy of other and renames b to
// "Copy of <other name>". b keeps its own location; a different location
// on other selects a cross-location transfer.
func (b *Buffer2D[T]) CopyFrom(other *Buffer2D[T]) error {
	if other == b {
		return nil
	}
	if b.closed {
		return fmt.Errorf("copy into %s: %w", b.FullName(), ErrBufferClosed)
	}
	b.debug("gpubuf: assign", "from", other.FullName())

	err := b.Set(other.res, other.lease.storage)
	b.meta.setName("Copy of " + other.Name())
	return err
}

// ReadInto copies the contents into dst, downloading device storage.
// dst must hold at least ElementCount elements.
func (b *Buffer2D[T]) ReadInto(dst []T) error {
	n := b.ElementCount()
	if n == 0 {
		return nil
	}
	if len(dst) < n {
		return fmt.Errorf("read %s: %w: destination holds %d of %d elements",
			b.FullName(), ErrCopyOutOfRange, len(dst), n)
	}
	if err := Copy(WrapHost(dst[:n]), b.lease.storage, b.ByteCount()); err != nil {
		return fmt.Errorf("read %s: %w", b.FullName(), err)
	}
	return nil
}

// MarkModified bumps the counter. Use it after writing elements through
// At, Index or Data so that dependents notice.
func (b *Buffer2D[T]) MarkModified() {
	b.modified++
}

// At returns a pointer to element (x, y) of a host buffer. Bounds are the
// caller's responsibility; the pointer is valid until the next Resize, Set,
// Free or Close.
func (b *Buffer2D[T]) At(x, y int) *T {
	return &b.host[y*b.res.Width+x]
}

// Index returns a pointer to element i of a host buffer. Bounds are the
// caller's responsibility.
func (b *Buffer2D[T]) Index(i int) *T {
	return &b.host[i]
}

// Data returns the elements of a host buffer in row-major order, nil for
// device buffers and empty buffers. Writes through it alias the storage.
func (b *Buffer2D[T]) Data() []T {
	return b.host
}

// Get returns element (x, y), checking bounds and addressability.
func (b *Buffer2D[T]) Get(x, y int) (T, error) {
	p, err := b.checked(x, y)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Put stores v at element (x, y), checking bounds and addressability.
// It does not bump the counter.
func (b *Buffer2D[T]) Put(x, y int, v T) error {
	p, err := b.checked(x, y)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// GetIndex returns element i, checking bounds and addressability.
func (b *Buffer2D[T]) GetIndex(i int) (T, error) {
	var zero T
	if i < 0 || i >= b.ElementCount() {
		w := max(b.res.Width, 1)
		return zero, &IndexError{X: i % w, Y: i / w, Resolution: b.res}
	}
	if b.host == nil {
		return zero, fmt.Errorf("%w: %s", ErrNotHostAccessible, b.FullName())
	}
	return b.host[i], nil
}

func (b *Buffer2D[T]) checked(x, y int) (*T, error) {
	if !b.res.Contains(x, y) {
		return nil, &IndexError{X: x, Y: y, Resolution: b.res}
	}
	if b.host == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotHostAccessible, b.FullName())
	}
	return &b.host[b.res.Offset(x, y)], nil
}

func (b *Buffer2D[T]) allocator() (Allocator, error) {
	if b.alloc != nil {
		if b.alloc.Location() != b.loc {
			return nil, fmt.Errorf("%w: %s allocator for %s buffer", ErrLocationMismatch, b.alloc.Location(), b.loc)
		}
		return b.alloc, nil
	}
	switch b.loc {
	case Host:
		return DefaultHostAllocator, nil
	case Device:
		if d := DefaultDevice(); d != nil {
			return d, nil
		}
		return nil, ErrNoDevice
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidLocation, b.loc)
}

// release frees storage without touching the counter.
func (b *Buffer2D[T]) release() {
	b.lease.release()
	b.host = nil
	b.res = Resolution{}
}

func (b *Buffer2D[T]) sync() {
	b.meta.update(b.res, b.ByteCount())
}

func (b *Buffer2D[T]) debug(msg string, args ...any) {
	l := Logger()
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug(msg, append([]any{"buffer", b.FullName()}, args...)...)
}

// mustBePlain panics unless T is a non-empty, pointer-free type.
func mustBePlain[T any]() {
	t := reflect.TypeFor[T]()
	if t.Size() == 0 {
		panic(fmt.Sprintf("gpubuf: element type %v has zero size", t))
	}
	if !plainType(t) {
		panic(fmt.Sprintf("gpubuf: element type %v contains pointers", t))
	}
}

func plainType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return plainType(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !plainType(t.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}
