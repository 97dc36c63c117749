// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import "fmt"

// Storage is a block of raw memory owned by an Allocator.
//
// The concrete types are *HostStorage and *DeviceStorage. Storage is only
// ever released through the Allocator that produced it.
type Storage interface {
	// Location returns the memory space of the block.
	Location() Location

	// Size returns the usable size in bytes. It may exceed the requested
	// size when the allocator rounds up.
	Size() uint64
}

// Allocator is the only component that touches allocation primitives.
// Each buffer selects one Allocator at construction, so buffer code never
// branches on location.
type Allocator interface {
	// Location returns the memory space this allocator serves.
	Location() Location

	// Allocate returns storage of at least size bytes. The contents are
	// unspecified. Failures match ErrAllocationFailed.
	Allocate(size uint64) (Storage, error)

	// Zero sets every byte of s to zero.
	Zero(s Storage) error

	// Release frees s. Releasing nil or already released storage is a no-op.
	Release(s Storage)
}

// Copy copies size bytes from src to dst, choosing a host copy, an upload,
// a readback or a device-to-device copy depending on the two locations.
func Copy(dst, src Storage, size uint64) error {
	if isNilStorage(dst) || isNilStorage(src) {
		return ErrNilStorage
	}
	if size == 0 {
		return nil
	}
	if size > dst.Size() || size > src.Size() {
		return fmt.Errorf("%w: %d bytes from %d-byte %s storage into %d-byte %s storage",
			ErrCopyOutOfRange, size, src.Size(), src.Location(), dst.Size(), dst.Location())
	}

	Logger().Debug("gpubuf: copy",
		"src", src.Location().String(), "dst", dst.Location().String(), "bytes", size)

	switch d := dst.(type) {
	case *HostStorage:
		switch s := src.(type) {
		case *HostStorage:
			copy(d.mem[:size], s.mem[:size])
			return nil
		case *DeviceStorage:
			return s.dev.download(s, d.mem[:size])
		}
	case *DeviceStorage:
		switch s := src.(type) {
		case *HostStorage:
			return d.dev.upload(d, s.mem[:size])
		case *DeviceStorage:
			if s.dev == d.dev {
				return d.dev.copyBuffer(d, s, size)
			}
			// Different devices: stage through host memory.
			staging := make([]byte, size)
			if err := s.dev.download(s, staging); err != nil {
				return err
			}
			return d.dev.upload(d, staging)
		}
	}
	return fmt.Errorf("%w: cannot copy %T into %T", ErrLocationMismatch, src, dst)
}

func isNilStorage(s Storage) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *HostStorage:
		return v == nil
	case *DeviceStorage:
		return v == nil
	}
	return false
}
