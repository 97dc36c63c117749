// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import "math/rand/v2"

// NewRandomSeedBuffer creates a buffer of random 32-bit seeds, typically
// one per pixel to start a per-pixel generator in a kernel.
//
// Every Resize redraws all seeds on the host and uploads them, even when
// the resolution is unchanged, so each call yields a fresh set. Use
// WithRand for reproducible seeds.
func NewRandomSeedBuffer(loc Location, name string, opts ...Option) *Buffer2D[uint32] {
	o := collectOptions(opts)
	return newBuffer2D(loc, name, fillStrategy[uint32]{draw: seedFill(o.rng)}, o)
}

// NewFilledBuffer2D creates a buffer whose every Resize regenerates all
// elements with fill on the host and installs them, even when the
// resolution is unchanged.
//
// NewFilledBuffer2D panics if T contains pointers or fill is nil.
func NewFilledBuffer2D[T any](loc Location, name string, fill func([]T), opts ...Option) *Buffer2D[T] {
	if fill == nil {
		panic("gpubuf: nil fill function")
	}
	return newBuffer2D(loc, name, fillStrategy[T]{draw: fill}, collectOptions(opts))
}

func seedFill(r *rand.Rand) func([]uint32) {
	if r == nil {
		return func(seeds []uint32) {
			for i := range seeds {
				seeds[i] = rand.Uint32()
			}
		}
	}
	return func(seeds []uint32) {
		for i := range seeds {
			seeds[i] = r.Uint32()
		}
	}
}
