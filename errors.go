// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"errors"
	"fmt"
)

// Buffer errors.
var (
	// ErrAllocationFailed is matched by every allocation failure, host or device.
	ErrAllocationFailed = errors.New("gpubuf: allocation failed")

	// ErrMemoryBudgetExceeded is returned when an allocation would exceed a Budget.
	ErrMemoryBudgetExceeded = errors.New("gpubuf: memory budget exceeded")

	// ErrInvalidBufferSize is returned for zero or oversized allocations.
	ErrInvalidBufferSize = errors.New("gpubuf: invalid buffer size")

	// ErrIndexOutOfRange is matched by checked accessors given a bad coordinate.
	ErrIndexOutOfRange = errors.New("gpubuf: index out of range")

	// ErrNotHostAccessible is returned when element access is attempted on
	// storage that Go code cannot address.
	ErrNotHostAccessible = errors.New("gpubuf: storage is not host accessible")

	// ErrLocationMismatch is returned when storage or an allocator does not
	// belong to the expected location.
	ErrLocationMismatch = errors.New("gpubuf: location mismatch")

	// ErrInvalidLocation is returned when parsing an unknown location name.
	ErrInvalidLocation = errors.New("gpubuf: invalid location")

	// ErrNilStorage is returned when a copy names a nil storage.
	ErrNilStorage = errors.New("gpubuf: storage is nil")

	// ErrCopyOutOfRange is returned when a copy exceeds either storage.
	ErrCopyOutOfRange = errors.New("gpubuf: copy out of range")

	// ErrSourceTooSmall is returned by Set when the source holds fewer bytes
	// than the target resolution needs.
	ErrSourceTooSmall = errors.New("gpubuf: source too small")

	// ErrBufferClosed is returned when a closed Buffer2D is resized or written.
	ErrBufferClosed = errors.New("gpubuf: buffer closed")

	// ErrNoDevice is returned when a device buffer has no device to allocate from.
	ErrNoDevice = errors.New("gpubuf: no device available")

	// ErrDeviceClosed is returned when operating on a closed GPUDevice.
	ErrDeviceClosed = errors.New("gpubuf: device closed")

	// ErrNilHALDevice is returned when a GPUDevice is built without a hal device or queue.
	ErrNilHALDevice = errors.New("gpubuf: hal device or queue is nil")
)

// AllocationError describes a failed allocation.
type AllocationError struct {
	Location Location
	Bytes    uint64
	Err      error
}

func (e *AllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gpubuf: %s allocation of %d bytes failed", e.Location, e.Bytes)
	}
	return fmt.Sprintf("gpubuf: %s allocation of %d bytes failed: %v", e.Location, e.Bytes, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AllocationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrAllocationFailed.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocationFailed }

// IndexError describes an out-of-range element access.
type IndexError struct {
	X, Y       int
	Resolution Resolution
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("gpubuf: index (%d, %d) out of range for %s", e.X, e.Y, e.Resolution)
}

// Is reports whether target is ErrIndexOutOfRange.
func (e *IndexError) Is(target error) bool { return target == ErrIndexOutOfRange }
