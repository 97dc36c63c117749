// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Identity names a buffer for diagnostics.
type Identity struct {
	// Name is the human-readable buffer name.
	Name string

	// Location is fixed for the life of the buffer.
	Location Location

	// ID is unique per process and never reused.
	ID uint64
}

// FullName returns "<name> (<location> #<id>)", the form used in logs.
func (id Identity) FullName() string {
	return fmt.Sprintf("%s (%s #%d)", id.Name, id.Location, id.ID)
}

// BufferInfo describes a live buffer.
type BufferInfo struct {
	Identity
	Resolution Resolution
	Bytes      uint64
}

// bufferMeta is the part of a buffer visible to the registry. It is kept
// apart from the buffer so the registry does not keep buffers reachable.
type bufferMeta struct {
	id     Identity
	name   atomic.Pointer[string]
	width  atomic.Int64
	height atomic.Int64
	bytes  atomic.Uint64
}

func (m *bufferMeta) identity() Identity {
	id := m.id
	if name := m.name.Load(); name != nil {
		id.Name = *name
	}
	return id
}

func (m *bufferMeta) setName(name string) {
	m.name.Store(&name)
}

func (m *bufferMeta) update(r Resolution, bytes uint64) {
	m.width.Store(int64(r.Width))
	m.height.Store(int64(r.Height))
	m.bytes.Store(bytes)
}

func (m *bufferMeta) info() BufferInfo {
	return BufferInfo{
		Identity:   m.identity(),
		Resolution: Res(int(m.width.Load()), int(m.height.Load())),
		Bytes:      m.bytes.Load(),
	}
}

var (
	nextBufferID atomic.Uint64
	liveBuffers  = xsync.NewMapOf[uint64, *bufferMeta]()
	created      = xsync.NewCounter()
)

func registerBuffer(name string, loc Location) *bufferMeta {
	m := &bufferMeta{id: Identity{Name: name, Location: loc, ID: nextBufferID.Add(1)}}
	m.setName(name)
	liveBuffers.Store(m.id.ID, m)
	created.Inc()
	return m
}

func unregisterBuffer(m *bufferMeta) {
	liveBuffers.Delete(m.id.ID)
}

// LiveCount returns the number of buffers created and not yet closed.
func LiveCount() int {
	return liveBuffers.Size()
}

// CreatedCount returns the number of buffers created by the process.
func CreatedCount() int64 {
	return created.Value()
}

// LiveBuffers returns the buffers created and not yet closed, ordered by ID.
func LiveBuffers() []BufferInfo {
	infos := make([]BufferInfo, 0, liveBuffers.Size())
	liveBuffers.Range(func(_ uint64, m *bufferMeta) bool {
		infos = append(infos, m.info())
		return true
	})
	slices.SortFunc(infos, func(a, b BufferInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return infos
}
