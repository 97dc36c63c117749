// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gpubuf/internal/hostmem"
)

// DefaultMmapThreshold is the block size from which DefaultHostAllocator
// maps anonymous memory instead of using the Go heap (4 MiB).
const DefaultMmapThreshold = 4 << 20

// DefaultHostAllocator serves host buffers that were not given an allocator.
var DefaultHostAllocator = &HostAllocator{MmapThreshold: DefaultMmapThreshold}

// HostStorage is a block of host memory.
type HostStorage struct {
	block  *hostmem.Block // nil for wrapped caller memory
	mem    []byte
	budget *Budget
}

// WrapHost presents caller-owned memory as host storage so it can take part
// in Copy. Releasing wrapped storage does nothing. T must be pointer-free.
func WrapHost[T any](s []T) *HostStorage {
	return &HostStorage{mem: sliceBytes(s)}
}

// Location returns Host.
func (s *HostStorage) Location() Location { return Host }

// Size returns the block size in bytes.
func (s *HostStorage) Size() uint64 { return uint64(len(s.mem)) }

// Bytes returns the block's memory, nil once released.
func (s *HostStorage) Bytes() []byte { return s.mem }

// Mapped reports whether the block is an anonymous mapping outside the Go heap.
func (s *HostStorage) Mapped() bool { return s.block != nil && s.block.Mapped() }

// HostAllocator allocates host memory. The zero value allocates from the
// Go heap with no budget.
type HostAllocator struct {
	// Budget, if set, limits the bytes held by this allocator.
	Budget *Budget

	// MmapThreshold is the block size from which anonymous mappings are used.
	// 0 disables mapping.
	MmapThreshold uint64
}

var _ Allocator = (*HostAllocator)(nil)

// Location returns Host.
func (a *HostAllocator) Location() Location { return Host }

// Allocate returns a 64-byte aligned block of size bytes.
func (a *HostAllocator) Allocate(size uint64) (Storage, error) {
	if size == 0 || size > uint64(maxInt) {
		return nil, &AllocationError{Location: Host, Bytes: size, Err: ErrInvalidBufferSize}
	}
	if err := a.Budget.Reserve(size); err != nil {
		return nil, &AllocationError{Location: Host, Bytes: size, Err: err}
	}

	threshold := int(min(a.MmapThreshold, uint64(maxInt)))
	block, err := hostmem.Alloc(int(size), threshold)
	if err != nil {
		a.Budget.Unreserve(size)
		return nil, &AllocationError{Location: Host, Bytes: size, Err: err}
	}
	return &HostStorage{block: block, mem: block.Bytes(), budget: a.Budget}, nil
}

// Zero clears every byte of s.
func (a *HostAllocator) Zero(s Storage) error {
	hs, ok := s.(*HostStorage)
	if !ok || hs == nil {
		return fmt.Errorf("%w: host allocator cannot zero %T", ErrLocationMismatch, s)
	}
	clear(hs.mem)
	return nil
}

// Release frees s.
func (a *HostAllocator) Release(s Storage) {
	hs, ok := s.(*HostStorage)
	if !ok || hs == nil || hs.block == nil || hs.mem == nil {
		return
	}
	size := uint64(len(hs.mem))
	hs.mem = nil
	if err := hs.block.Free(); err != nil {
		Logger().Warn("gpubuf: host release failed", "bytes", size, "err", err)
	}
	hs.budget.Unreserve(size)
}

const maxInt = int(^uint(0) >> 1)

// sliceBytes reinterprets a pointer-free slice as bytes.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	n := len(s) * int(unsafe.Sizeof(zero))
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), n) //nolint:gosec // pointer-free element types only
}

// bytesAs reinterprets a byte block as count elements of T.
func bytesAs[T any](b []byte, count int) []T {
	if count == 0 || len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), count) //nolint:gosec // blocks are 64-byte aligned
}
