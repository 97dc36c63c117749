// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import "math/rand/v2"

// Option configures a buffer during creation.
//
// Example:
//
//	// Host buffer from the default allocator
//	b := gpubuf.NewBuffer2D[float32](gpubuf.Host, "Depth")
//
//	// Device buffer on a specific device, zeroed whenever it is reallocated
//	b := gpubuf.NewBuffer2D[float32](gpubuf.Device, "Depth",
//	    gpubuf.WithAllocator(dev), gpubuf.WithZeroOnResize())
type Option func(*options)

type options struct {
	alloc        Allocator
	zeroOnResize bool
	rng          *rand.Rand
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAllocator sets the allocator a buffer draws storage from. Its
// location must match the buffer's; otherwise Resize fails with
// ErrLocationMismatch.
//
// Without it, host buffers use DefaultHostAllocator and device buffers use
// DefaultDevice.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

// WithZeroOnResize zero-fills storage every time Resize reallocates it.
// By default fresh storage is left as the allocator returns it.
func WithZeroOnResize() Option {
	return func(o *options) {
		o.zeroOnResize = true
	}
}

// WithRand sets the generator a random seed buffer draws from. By default
// the process-wide generator of math/rand/v2 is used.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rng = r
	}
}
