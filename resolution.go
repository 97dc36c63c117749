// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import "fmt"

// Resolution is the width and height of a 2D buffer in elements.
type Resolution struct {
	Width  int
	Height int
}

// Res is shorthand for Resolution{Width: w, Height: h}.
func Res(w, h int) Resolution {
	return Resolution{Width: w, Height: h}
}

// Count returns the number of elements, or 0 if either dimension is not
// positive or the product does not fit in an int.
func (r Resolution) Count() int {
	if r.Empty() || r.Overflows() {
		return 0
	}
	return r.Width * r.Height
}

// Overflows reports whether Width*Height does not fit in an int. Such a
// resolution cannot be allocated.
func (r Resolution) Overflows() bool {
	if r.Empty() {
		return false
	}
	return r.Width > maxInt/r.Height
}

// Empty reports whether either dimension is not positive.
func (r Resolution) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Normalize maps every resolution without elements to (0, 0).
func (r Resolution) Normalize() Resolution {
	if r.Empty() {
		return Resolution{}
	}
	return r
}

// Contains reports whether (x, y) addresses an element of r.
func (r Resolution) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// Offset returns the row-major index of (x, y). It does not check bounds.
func (r Resolution) Offset(x, y int) int {
	return y*r.Width + x
}

// String returns "WxH".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
