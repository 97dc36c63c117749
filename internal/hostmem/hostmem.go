// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hostmem provides raw host memory blocks for gpubuf.
//
// Small blocks come from the Go heap, over-allocated and trimmed so the
// first byte is Alignment-aligned. Large blocks are anonymous mappings on
// platforms that support them; they bypass the garbage collector and must
// be released with Free.
package hostmem

import (
	"errors"
	"fmt"
	"unsafe"
)

// Alignment is the guaranteed alignment of every block's first byte.
const Alignment = 64

const (
	// MaxSize is the largest block Alloc hands out by any route (1 TiB).
	MaxSize = 1 << 40

	// MaxHeapSize is the largest block taken from the Go heap (4 GiB).
	// A failed heap allocation is fatal to the process, so larger blocks
	// must be mapped.
	MaxHeapSize = 4 << 30
)

// ErrTooLarge is returned for sizes no allocation route will serve.
var ErrTooLarge = errors.New("hostmem: block too large")

// mapBlock is swapped in tests to simulate a refused mapping.
var mapBlock = mapAnon

// Block is a host memory block.
type Block struct {
	b      []byte
	mapped bool
}

// Bytes returns the block's memory. It is nil after Free.
func (b *Block) Bytes() []byte { return b.b }

// Len returns the block size in bytes.
func (b *Block) Len() int { return len(b.b) }

// Mapped reports whether the block is an anonymous mapping.
func (b *Block) Mapped() bool { return b.mapped }

// Alloc returns a block of size bytes. Blocks of at least mmapThreshold bytes
// are mapped when the platform allows it; a threshold of 0 disables mapping.
// A refused mapping is returned as an error, never retried on the heap.
func Alloc(size int, mmapThreshold int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("hostmem: invalid size %d", size)
	}
	if uint64(size) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, uint64(MaxSize))
	}
	if mmapThreshold > 0 && size >= mmapThreshold && mmapSupported {
		b, err := mapBlock(size)
		if err != nil {
			return nil, fmt.Errorf("hostmem: map %d bytes: %w", size, err)
		}
		return &Block{b: b, mapped: true}, nil
	}
	if uint64(size) > MaxHeapSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the heap limit of %d", ErrTooLarge, size, uint64(MaxHeapSize))
	}
	return &Block{b: heapAlloc(size)}, nil
}

// Free releases the block. Freeing twice is a no-op.
func (b *Block) Free() error {
	if b == nil || b.b == nil {
		return nil
	}
	mem := b.b
	b.b = nil
	if b.mapped {
		return unmapAnon(mem)
	}
	return nil
}

func heapAlloc(size int) []byte {
	buf := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := int((Alignment - addr%Alignment) % Alignment)
	return buf[shift : shift+size : shift+size]
}
