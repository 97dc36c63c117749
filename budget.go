// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"
	"sync"
)

// MemoryStats contains memory usage statistics of a Budget.
type MemoryStats struct {
	// LimitBytes is the budget in bytes, 0 if unlimited.
	LimitBytes uint64

	// UsedBytes is the currently reserved memory in bytes.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// Allocations is the number of successful reservations.
	Allocations uint64

	// Failures is the number of reservations refused by the limit.
	Failures uint64

	// Utilization is UsedBytes/LimitBytes (0.0 to 1.0), 0 if unlimited.
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	if s.LimitBytes == 0 {
		return fmt.Sprintf("Memory[%d KB used, %d KB peak, unlimited, %d allocations, %d failures]",
			s.UsedBytes/1024, s.PeakBytes/1024, s.Allocations, s.Failures)
	}
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d KB, %d KB peak, %d allocations, %d failures]",
		s.Utilization*100,
		s.UsedBytes/1024,
		s.LimitBytes/1024,
		s.PeakBytes/1024,
		s.Allocations,
		s.Failures)
}

// Budget tracks reserved bytes against an optional limit. Allocators
// reserve before allocating and unreserve on release.
//
// Budget is safe for concurrent use.
type Budget struct {
	mu sync.Mutex

	limit uint64
	used  uint64
	peak  uint64

	allocations uint64
	failures    uint64
}

// NewBudget creates a budget of limitBytes. A limit of 0 means unlimited;
// the budget then only records usage.
func NewBudget(limitBytes uint64) *Budget {
	return &Budget{limit: limitBytes}
}

// Reserve records n bytes as used. It fails with ErrMemoryBudgetExceeded,
// leaving usage unchanged, if the reservation would exceed the limit.
func (b *Budget) Reserve(n uint64) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && (n > b.limit || b.used > b.limit-n) {
		b.failures++
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrMemoryBudgetExceeded, n, b.used, b.limit)
	}

	b.used += n
	b.allocations++
	if b.used > b.peak {
		b.peak = b.used
	}
	return nil
}

// Unreserve returns n bytes to the budget.
func (b *Budget) Unreserve(n uint64) {
	if b == nil {
		return
	}

	b.mu.Lock()
	if n > b.used {
		n = b.used
	}
	b.used -= n
	b.mu.Unlock()
}

// Stats returns a snapshot of the budget.
func (b *Budget) Stats() MemoryStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := MemoryStats{
		LimitBytes:  b.limit,
		UsedBytes:   b.used,
		PeakBytes:   b.peak,
		Allocations: b.allocations,
		Failures:    b.failures,
	}
	if b.limit > 0 {
		s.Utilization = float64(b.used) / float64(b.limit)
	}
	return s
}
