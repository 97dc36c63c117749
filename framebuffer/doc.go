// Package framebuffer holds the per-pixel buffers of a progressive renderer:
// the estimate of the current frame, the running average over frames, the
// display conversion, two random seed buffers and a host copy of the
// display for presentation.
//
// All working buffers live at one location. Kernels bind their storage
// directly; the package itself only sizes the buffers, converts the
// running estimate for display when no kernel does, and copies the display
// to the host when it changed.
package framebuffer
