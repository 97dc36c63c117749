// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"sync"

	"github.com/eapache/queue"
)

// PoolStats tracks pool statistics.
type PoolStats struct {
	Allocations uint64 // Total Allocate calls that succeeded
	Reuses      uint64 // Allocations served from a parked block
	Misses      uint64 // Allocations that went to the underlying allocator
	Evictions   uint64 // Parked blocks released to make room
	PooledBytes uint64 // Bytes currently parked
}

// Pool recycles storage of an underlying allocator. Blocks are grouped in
// size classes; a released block is parked in its class and handed out
// again, oldest first, by the next allocation of that class.
//
// Recycled storage is not zeroed. Pool is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	alloc    Allocator
	maxBytes uint64

	classes map[uint64]*queue.Queue // size class -> parked Storage
	order   *queue.Queue            // parked Storage across classes, oldest first
	active  map[Storage]uint64      // handed-out storage -> size class
	parked  map[Storage]bool

	stats PoolStats
}

var _ Allocator = (*Pool)(nil)

// NewPool creates a pool over a. At most maxBytes stay parked; 0 means
// no limit.
func NewPool(a Allocator, maxBytes uint64) *Pool {
	return &Pool{
		alloc:    a,
		maxBytes: maxBytes,
		classes:  make(map[uint64]*queue.Queue),
		order:    queue.New(),
		active:   make(map[Storage]uint64),
		parked:   make(map[Storage]bool),
	}
}

// Location returns the location of the underlying allocator.
func (p *Pool) Location() Location { return p.alloc.Location() }

// Allocate returns a parked block of the size class of size, or a new one.
func (p *Pool) Allocate(size uint64) (Storage, error) {
	class := sizeClass(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	if q, ok := p.classes[class]; ok {
		for q.Length() > 0 {
			s := q.Remove().(Storage)
			if !p.parked[s] {
				// Evicted while queued in its class.
				continue
			}
			delete(p.parked, s)
			p.active[s] = class
			p.stats.PooledBytes -= class
			p.stats.Reuses++
			p.stats.Allocations++
			return s, nil
		}
	}

	p.stats.Misses++
	s, err := p.alloc.Allocate(class)
	if err != nil {
		return nil, err
	}
	p.active[s] = class
	p.stats.Allocations++
	return s, nil
}

// Zero delegates to the underlying allocator.
func (p *Pool) Zero(s Storage) error {
	return p.alloc.Zero(s)
}

// Release parks s for reuse. Storage the pool did not hand out goes
// straight to the underlying allocator.
func (p *Pool) Release(s Storage) {
	if isNilStorage(s) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	class, ok := p.active[s]
	if !ok {
		if !p.parked[s] {
			p.alloc.Release(s)
		}
		return
	}
	delete(p.active, s)

	if p.maxBytes > 0 && class > p.maxBytes {
		p.alloc.Release(s)
		p.stats.Evictions++
		return
	}
	for p.maxBytes > 0 && p.stats.PooledBytes+class > p.maxBytes {
		p.evictOldest()
	}

	q, ok := p.classes[class]
	if !ok {
		q = queue.New()
		p.classes[class] = q
	}
	q.Add(s)
	p.order.Add(s)
	p.parked[s] = true
	p.stats.PooledBytes += class
}

// evictOldest releases the longest-parked block. The caller holds p.mu.
func (p *Pool) evictOldest() {
	for p.order.Length() > 0 {
		s := p.order.Remove().(Storage)
		if !p.parked[s] {
			// Reused since it was parked.
			continue
		}
		delete(p.parked, s)
		p.stats.PooledBytes -= sizeClass(s.Size())
		p.stats.Evictions++
		p.alloc.Release(s)
		return
	}
}

// Clear releases every parked block.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for s := range p.parked {
		p.alloc.Release(s)
	}
	clear(p.parked)
	clear(p.classes)
	p.order = queue.New()
	p.stats.PooledBytes = 0
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// sizeClass rounds n up to the pool's allocation granularity.
func sizeClass(n uint64) uint64 {
	switch {
	case n == 0:
		return 0
	case n <= 256:
		return 256
	case n <= 1024:
		return 1024
	case n <= 4096:
		return 4096
	}

	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
