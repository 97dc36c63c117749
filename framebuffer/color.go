// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framebuffer

import "math"

// ColorXYZA is CIE XYZ radiance with alpha.
type ColorXYZA struct {
	X, Y, Z, A float32
}

// ColorRGBA8 is an 8-bit sRGB pixel with straight alpha.
type ColorRGBA8 struct {
	R, G, B, A uint8
}

// ToneMap converts c to display sRGB. Exposure scales radiance before the
// exponential roll-off; 1 is neutral.
func (c ColorXYZA) ToneMap(exposure float64) ColorRGBA8 {
	x, y, z := float64(c.X), float64(c.Y), float64(c.Z)

	// XYZ to linear sRGB, D65.
	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	b := 0.0556434*x - 0.2040259*y + 1.0572252*z

	return ColorRGBA8{
		R: to8(encodeSRGB(expose(r, exposure))),
		G: to8(encodeSRGB(expose(g, exposure))),
		B: to8(encodeSRGB(expose(b, exposure))),
		A: to8(float64(c.A)),
	}
}

func expose(v, exposure float64) float64 {
	if v <= 0 {
		return 0
	}
	return 1 - math.Exp(-v*exposure)
}

func encodeSRGB(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func to8(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
