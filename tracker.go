// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

// Versioned is anything with a monotonic modification counter.
// *Buffer2D satisfies it.
type Versioned interface {
	ModifiedTime() uint64
}

// Tracker remembers the last observed modification counter of a set of
// sources. Consumers use it to skip work when nothing changed since the
// previous frame.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	seen map[Versioned]uint64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[Versioned]uint64)}
}

// Track starts following v at its current counter.
func (t *Tracker) Track(v Versioned) {
	t.seen[v] = v.ModifiedTime()
}

// Changed reports whether v changed since it was last observed.
// Untracked sources always report true.
func (t *Tracker) Changed(v Versioned) bool {
	last, ok := t.seen[v]
	return !ok || v.ModifiedTime() != last
}

// Observe records the current counter of v and reports whether it changed.
func (t *Tracker) Observe(v Versioned) bool {
	changed := t.Changed(v)
	t.seen[v] = v.ModifiedTime()
	return changed
}

// Forget stops following v.
func (t *Tracker) Forget(v Versioned) {
	delete(t.seen, v)
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int {
	return len(t.seen)
}
