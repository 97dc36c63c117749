// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framebuffer

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/internal/parallel"
)

// parallelToneMapPixels is the frame size from which ToneMap splits rows
// across workers.
const parallelToneMapPixels = 256 * 256

var workers = sync.OnceValue(func() *parallel.Pool { return parallel.NewPool(0) })

// ErrNoDisplay is returned by Image and DrawTo before anything was presented.
var ErrNoDisplay = errors.New("framebuffer: nothing presented")

// FrameBuffer groups the buffers a progressive renderer needs per pixel.
//
// FrameBuffer is not safe for concurrent use.
type FrameBuffer struct {
	// FrameEstimate is the radiance estimate of the frame being rendered.
	FrameEstimate *gpubuf.Buffer2D[ColorXYZA]

	// RunningEstimate is the average of all estimates since the last reset.
	RunningEstimate *gpubuf.Buffer2D[ColorXYZA]

	// DisplayEstimate is the tone-mapped running estimate.
	DisplayEstimate *gpubuf.Buffer2D[ColorRGBA8]

	// RandomSeeds1 and RandomSeeds2 seed per-pixel generators. They are
	// redrawn on every Resize.
	RandomSeeds1 *gpubuf.Buffer2D[uint32]
	RandomSeeds2 *gpubuf.Buffer2D[uint32]

	// HostDisplay is a host copy of DisplayEstimate, refreshed by Present.
	HostDisplay *gpubuf.Buffer2D[ColorRGBA8]

	loc         gpubuf.Location
	noEstimates int
	presented   *gpubuf.Tracker
}

// New creates an empty frame buffer whose working buffers live at loc.
// opts apply to every working buffer; HostDisplay always uses the default
// host allocator.
func New(loc gpubuf.Location, opts ...gpubuf.Option) *FrameBuffer {
	return &FrameBuffer{
		FrameEstimate:   gpubuf.NewBuffer2D[ColorXYZA](loc, "Frame Estimate", opts...),
		RunningEstimate: gpubuf.NewBuffer2D[ColorXYZA](loc, "Running Estimate", opts...),
		DisplayEstimate: gpubuf.NewBuffer2D[ColorRGBA8](loc, "Display Estimate", opts...),
		RandomSeeds1:    gpubuf.NewRandomSeedBuffer(loc, "Random Seeds 1", opts...),
		RandomSeeds2:    gpubuf.NewRandomSeedBuffer(loc, "Random Seeds 2", opts...),
		HostDisplay:     gpubuf.NewBuffer2D[ColorRGBA8](gpubuf.Host, "Host Display"),
		loc:             loc,
		presented:       gpubuf.NewTracker(),
	}
}

// Location returns the location of the working buffers.
func (f *FrameBuffer) Location() gpubuf.Location { return f.loc }

// Resolution returns the current resolution.
func (f *FrameBuffer) Resolution() gpubuf.Resolution { return f.RunningEstimate.Resolution() }

// NoEstimates returns the number of estimates accumulated since the last reset.
func (f *FrameBuffer) NoEstimates() int { return f.noEstimates }

// AddEstimate records that one more frame was accumulated.
func (f *FrameBuffer) AddEstimate() { f.noEstimates++ }

// Resize sizes every buffer for w×h, redraws the seeds and resets the
// estimates.
func (f *FrameBuffer) Resize(w, h int) error {
	r := gpubuf.Res(w, h)
	gpubuf.Logger().Debug("framebuffer: resize", "resolution", r.String())

	steps := []func(gpubuf.Resolution) error{
		f.FrameEstimate.Resize,
		f.RunningEstimate.Resize,
		f.DisplayEstimate.Resize,
		f.RandomSeeds1.Resize,
		f.RandomSeeds2.Resize,
		f.HostDisplay.Resize,
	}
	for _, resize := range steps {
		if err := resize(r); err != nil {
			return fmt.Errorf("framebuffer: %w", err)
		}
	}
	return f.Reset()
}

// Reset clears the estimates and the estimate count.
func (f *FrameBuffer) Reset() error {
	f.noEstimates = 0
	for _, reset := range []func() error{
		f.FrameEstimate.Reset,
		f.RunningEstimate.Reset,
		f.DisplayEstimate.Reset,
	} {
		if err := reset(); err != nil {
			return fmt.Errorf("framebuffer: %w", err)
		}
	}
	return nil
}

// Free releases the storage of every buffer.
func (f *FrameBuffer) Free() {
	f.FrameEstimate.Free()
	f.RunningEstimate.Free()
	f.DisplayEstimate.Free()
	f.RandomSeeds1.Free()
	f.RandomSeeds2.Free()
	f.HostDisplay.Free()
	f.noEstimates = 0
}

// Close releases every buffer. The frame buffer must not be used afterwards.
func (f *FrameBuffer) Close() {
	f.FrameEstimate.Close()
	f.RunningEstimate.Close()
	f.DisplayEstimate.Close()
	f.RandomSeeds1.Close()
	f.RandomSeeds2.Close()
	f.HostDisplay.Close()
}

// Bytes returns the storage held by all buffers.
func (f *FrameBuffer) Bytes() uint64 {
	return f.FrameEstimate.ByteCount() +
		f.RunningEstimate.ByteCount() +
		f.DisplayEstimate.ByteCount() +
		f.RandomSeeds1.ByteCount() +
		f.RandomSeeds2.ByteCount() +
		f.HostDisplay.ByteCount()
}

// ToneMap converts the running estimate into DisplayEstimate on the host.
// Device estimates are downloaded first and the result uploaded again.
func (f *FrameBuffer) ToneMap(exposure float64) error {
	r := f.RunningEstimate.Resolution()
	n := r.Count()
	if n == 0 {
		return nil
	}

	radiance := f.RunningEstimate.Data()
	if radiance == nil {
		radiance = make([]ColorXYZA, n)
		if err := f.RunningEstimate.ReadInto(radiance); err != nil {
			return fmt.Errorf("framebuffer: tone map: %w", err)
		}
	}

	display := make([]ColorRGBA8, n)
	convert := func(lo, hi int) {
		for i := lo * r.Width; i < hi*r.Width; i++ {
			display[i] = radiance[i].ToneMap(exposure)
		}
	}
	if n < parallelToneMapPixels {
		convert(0, r.Height)
	} else {
		workers().Rows(r.Height, convert)
	}
	if err := f.DisplayEstimate.SetSlice(r, display); err != nil {
		return fmt.Errorf("framebuffer: tone map: %w", err)
	}
	return nil
}

// Present copies DisplayEstimate into HostDisplay if it changed since the
// last call. It reports whether a copy happened.
func (f *FrameBuffer) Present() (bool, error) {
	if !f.presented.Observe(f.DisplayEstimate) {
		return false, nil
	}
	err := f.HostDisplay.Set(f.DisplayEstimate.Resolution(), f.DisplayEstimate.Storage())
	if err != nil {
		f.presented.Forget(f.DisplayEstimate)
		return false, fmt.Errorf("framebuffer: present: %w", err)
	}
	return true, nil
}

// Image returns a copy of HostDisplay.
func (f *FrameBuffer) Image() (*image.RGBA, error) {
	r := f.HostDisplay.Resolution()
	if r.Empty() {
		return nil, ErrNoDisplay
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, c := range f.HostDisplay.Data() {
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

// DrawTo scales HostDisplay into rect of dst with bilinear filtering.
func (f *FrameBuffer) DrawTo(dst draw.Image, rect image.Rectangle) error {
	src, err := f.Image()
	if err != nil {
		return err
	}
	draw.ApproxBiLinear.Scale(dst, rect, src, src.Bounds(), draw.Over, nil)
	return nil
}
